package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/spigell/jobmatch/internal/jobs"
)

// Neutral is the sub-score used when there is no basis to compute one.
const Neutral = 0.5

// DefaultTolerance is the experience gap, in years, at which the experience score reaches 0.
const DefaultTolerance = 2.0

var ErrInvalidWeights = errors.New("invalid scoring weights")

// Weights combine the sub-scores. They must be non-negative and sum to 1.
type Weights struct {
	Skills     float64 `mapstructure:"skills" json:"skills"`
	Experience float64 `mapstructure:"experience" json:"experience"`
	Location   float64 `mapstructure:"location" json:"location"`
}

func DefaultWeights() Weights {
	return Weights{Skills: 0.5, Experience: 0.3, Location: 0.2}
}

func (w Weights) Validate() error {
	if w.Skills < 0 || w.Experience < 0 || w.Location < 0 {
		return fmt.Errorf("%w: weights must not be negative: %+v", ErrInvalidWeights, w)
	}
	if sum := w.Skills + w.Experience + w.Location; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %v", ErrInvalidWeights, sum)
	}
	return nil
}

// Scorer computes the structured compatibility between a resume and a posting.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	weights   Weights
	tolerance float64
}

// New validates weights. A negative tolerance is rejected, zero means any gap scores 0.
func New(weights Weights, tolerance float64) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, fmt.Errorf("experience tolerance must not be negative, got %v", tolerance)
	}
	return &Scorer{weights: weights, tolerance: tolerance}, nil
}

// Default returns a scorer with default weights and tolerance.
func Default() *Scorer {
	return &Scorer{weights: DefaultWeights(), tolerance: DefaultTolerance}
}

func (s *Scorer) Weights() Weights { return s.weights }

// Breakdown returns every sub-score together with the matched skills.
func (s *Scorer) Breakdown(resume *jobs.Resume, posting *jobs.Posting) jobs.Breakdown {
	skills, matched := SkillsScore(resume, posting)

	return jobs.Breakdown{
		Skills:        skills,
		Experience:    s.ExperienceScore(resume, posting),
		Location:      LocationScore(resume, posting),
		MatchedSkills: matched,
	}
}

// Score returns the weighted sum of the sub-scores, within [0,1].
func (s *Scorer) Score(resume *jobs.Resume, posting *jobs.Posting) float64 {
	return s.Combine(s.Breakdown(resume, posting))
}

// Combine applies the weights to an already computed breakdown.
func (s *Scorer) Combine(b jobs.Breakdown) float64 {
	return Clamp(s.weights.Skills*b.Skills + s.weights.Experience*b.Experience + s.weights.Location*b.Location)
}

// Clamp limits v to [0,1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
