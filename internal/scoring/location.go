package scoring

import (
	"regexp"
	"strings"

	"github.com/spigell/jobmatch/internal/jobs"
)

var remotePattern = regexp.MustCompile(`(?i)\b(remote|anywhere|work from home|wfh)\b`)

// LocationScore is 1 when the posting location, or one of its comma or slash
// separated parts, equals one of the resume locations. Otherwise remote
// postings score 0.5 and the rest 0. Missing location data scores Neutral.
func LocationScore(resume *jobs.Resume, posting *jobs.Posting) float64 {
	location := jobs.NormalizeText(posting.Location)
	if location == "" {
		return Neutral
	}

	candidates := resume.Locations()
	parts := locationParts(location)
	for _, candidate := range candidates {
		for _, part := range parts {
			if part == candidate {
				return 1
			}
		}
	}

	if IsRemote(location) {
		return 0.5
	}

	if len(candidates) == 0 {
		return Neutral
	}

	return 0
}

func IsRemote(location string) bool {
	return remotePattern.MatchString(location)
}

func locationParts(location string) []string {
	parts := []string{location}
	for _, part := range strings.FieldsFunc(location, func(r rune) bool {
		return r == ',' || r == '/' || r == '|' || r == ';' || r == '(' || r == ')'
	}) {
		if part = strings.TrimSpace(part); part != "" && part != location {
			parts = append(parts, part)
		}
	}
	return parts
}
