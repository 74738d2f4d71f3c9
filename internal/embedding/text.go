package embedding

import (
	"strings"

	"github.com/spigell/jobmatch/internal/jobs"
)

// PostingText is the text embedded for a posting.
func PostingText(p *jobs.Posting) string {
	var parts []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			if label != "" {
				value = label + ": " + value
			}
			parts = append(parts, value)
		}
	}

	add("", p.Title)
	add("company", p.Company)
	add("location", p.Location)
	add("skills", strings.Join(p.Skills, ", "))
	add("", p.Description)

	return strings.Join(parts, "\n")
}

// ResumeText is the profile text embedded for a resume: the summary and
// project descriptions, followed by the skills.
func ResumeText(r *jobs.Resume) string {
	text := r.ProfileText()
	if len(r.Skills) == 0 {
		return text
	}

	skills := "skills: " + strings.Join(r.Skills, ", ")
	if text == "" {
		return skills
	}
	return text + "\n" + skills
}
