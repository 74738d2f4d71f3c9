package jobs

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidResume = errors.New("invalid resume")

// Resume is the candidate profile a run ranks postings against.
type Resume struct {
	Name               string    `json:"name,omitempty"`
	Email              string    `json:"email,omitempty"`
	Skills             []string  `json:"skills"`
	ExperienceYears    float64   `json:"experience_years"`
	CurrentLocation    string    `json:"current_location,omitempty"`
	PreferredLocations []string  `json:"preferred_locations,omitempty"`
	About              string    `json:"about,omitempty"`
	Projects           []Project `json:"projects,omitempty"`
}

type Project struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r *Resume) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: resume is required", ErrInvalidResume)
	}
	if r.ExperienceYears < 0 {
		return fmt.Errorf("%w: experience years must not be negative, got %v", ErrInvalidResume, r.ExperienceYears)
	}
	return nil
}

// Locations returns the current and preferred locations, normalized and without duplicates.
func (r *Resume) Locations() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, loc := range append([]string{r.CurrentLocation}, r.PreferredLocations...) {
		loc = NormalizeText(loc)
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}

// SkillSet returns the resume skills keyed by their normalized form.
func (r *Resume) SkillSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Skills))
	for _, skill := range r.Skills {
		if key := NormalizeText(skill); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

// ProfileText concatenates the free-text parts of the resume.
func (r *Resume) ProfileText() string {
	parts := []string{strings.TrimSpace(r.About)}
	for _, project := range r.Projects {
		name := strings.TrimSpace(project.Name)
		desc := strings.TrimSpace(project.Description)
		switch {
		case name != "" && desc != "":
			parts = append(parts, name+": "+desc)
		case desc != "":
			parts = append(parts, desc)
		}
	}

	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part)
	}
	return b.String()
}
