package scoring

import (
	"github.com/spigell/jobmatch/internal/jobs"
)

// SkillsScore is the share of posting skills the resume covers, compared
// case-insensitively. A posting without skills scores Neutral.
func SkillsScore(resume *jobs.Resume, posting *jobs.Posting) (float64, []string) {
	required := jobs.UnionFold(posting.Skills)
	if len(required) == 0 {
		return Neutral, nil
	}

	have := resume.SkillSet()
	var matched []string
	for _, skill := range required {
		if _, ok := have[jobs.NormalizeText(skill)]; ok {
			matched = append(matched, skill)
		}
	}

	return Clamp(float64(len(matched)) / float64(max(1, len(required)))), matched
}
