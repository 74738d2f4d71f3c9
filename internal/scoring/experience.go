package scoring

import (
	"math"
	"regexp"
	"strconv"

	"github.com/spigell/jobmatch/internal/jobs"
)

const years = `(?:years?|yrs?)`

var (
	rangePattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*\+?\s*` + years)
	plusPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*\+\s*` + years)
	minimumPattern = regexp.MustCompile(`(?i)(?:at\s+least|minimum(?:\s+of)?|min\.?|over|more\s+than)\s*(\d+(?:\.\d+)?)\s*` + years)
	plainPattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*` + years + `(?:\s+of)?\s+(?:\w+\s+)?(?:experience|exp)`)
)

// Range is a required experience interval in years. Max may be +Inf.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Gap is the distance from v to the interval, 0 inside it.
func (r Range) Gap(v float64) float64 {
	switch {
	case v < r.Min:
		return r.Min - v
	case v > r.Max:
		return v - r.Max
	default:
		return 0
	}
}

// ExperienceRange returns the posting's required experience, taken from the
// explicit fields when present, else parsed from the description.
func ExperienceRange(posting *jobs.Posting) (Range, bool) {
	if posting.HasExperienceRange() {
		r := Range{Min: 0, Max: math.Inf(1)}
		if posting.MinExperience != nil {
			r.Min = *posting.MinExperience
		}
		if posting.MaxExperience != nil {
			r.Max = *posting.MaxExperience
		}
		if r.Max < r.Min {
			r.Min, r.Max = r.Max, r.Min
		}
		return r, true
	}

	return ParseExperience(posting.Description)
}

// ParseExperience extracts a requirement such as "3-5 years", "3+ years" or
// "at least 2 years of experience" from free text.
func ParseExperience(text string) (Range, bool) {
	if m := rangePattern.FindStringSubmatch(text); m != nil {
		lo, hi := parseFloat(m[1]), parseFloat(m[2])
		if hi < lo {
			lo, hi = hi, lo
		}
		return Range{Min: lo, Max: hi}, true
	}

	for _, pattern := range []*regexp.Regexp{plusPattern, minimumPattern, plainPattern} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return Range{Min: parseFloat(m[1]), Max: math.Inf(1)}, true
		}
	}

	return Range{}, false
}

// ExperienceScore is 1 inside the required range and decays linearly to 0
// over the tolerance window outside it. No requirement scores Neutral.
func (s *Scorer) ExperienceScore(resume *jobs.Resume, posting *jobs.Posting) float64 {
	r, ok := ExperienceRange(posting)
	if !ok {
		return Neutral
	}

	gap := r.Gap(resume.ExperienceYears)
	if gap == 0 {
		return 1
	}
	if s.tolerance <= 0 {
		return 0
	}

	return Clamp(1 - gap/s.tolerance)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
