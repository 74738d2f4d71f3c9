package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/spigell/jobmatch/internal/jobs"
)

// Merge builds the canonical record of a duplicate cluster. Members are not modified.
//
// Per field:
//   - base record (id, title, url, source, description): longest description, earliest on ties
//   - company, location: base value, else the first member that has one
//   - skills, sources: case-insensitive union
//   - scrape time: latest
//   - experience range: base range, else the first member that has one
func Merge(members ...*jobs.Posting) *jobs.Posting {
	if len(members) == 0 {
		return nil
	}

	base := members[longestDescription(members)]
	out := base.Clone()

	out.Company = firstNonEmpty(members, base.Company, func(p *jobs.Posting) string { return p.Company })
	out.Location = firstNonEmpty(members, base.Location, func(p *jobs.Posting) string { return p.Location })

	skills := make([][]string, 0, len(members))
	sources := make([][]string, 0, len(members)*2)
	for _, member := range members {
		skills = append(skills, member.Skills)
		sources = append(sources, member.Sources, []string{member.Source})

		if member.ScrapedAt.After(out.ScrapedAt) {
			out.ScrapedAt = member.ScrapedAt
		}
	}
	out.Skills = jobs.UnionFold(skills...)
	out.Sources = jobs.UnionFold(sources...)

	if !base.HasExperienceRange() {
		for _, member := range members {
			if member.HasExperienceRange() {
				donor := member.Clone()
				out.MinExperience = donor.MinExperience
				out.MaxExperience = donor.MaxExperience
				break
			}
		}
	}

	return out
}

func longestDescription(members []*jobs.Posting) int {
	best, bestLen := 0, -1
	for i, member := range members {
		if n := utf8.RuneCountInString(strings.TrimSpace(member.Description)); n > bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

func firstNonEmpty(members []*jobs.Posting, current string, field func(*jobs.Posting) string) string {
	if strings.TrimSpace(current) != "" {
		return current
	}
	for _, member := range members {
		if value := strings.TrimSpace(field(member)); value != "" {
			return value
		}
	}
	return current
}
