package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spigell/jobmatch/internal/jobs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadPostingRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		expect  int
	}{
		{
			name:    "json list",
			file:    "jobs.json",
			content: `[{"title":"Go Developer","url":"https://x/1","source":"linkedin"},{"title":"SRE","url":"https://x/2","source":"naukri"}]`,
			expect:  2,
		},
		{
			name:    "json wrapper",
			file:    "jobs.json",
			content: `{"items":[{"title":"Go Developer","url":"https://x/1","source":"linkedin"}]}`,
			expect:  1,
		},
		{
			name: "yaml list",
			file: "jobs.yaml",
			content: `
- title: Go Developer
  url: https://x/1
  source: linkedin
  scraped_at: 2024-05-01
`,
			expect: 1,
		},
		{
			name:    "empty",
			file:    "jobs.json",
			content: ``,
			expect:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records, err := LoadPostingRecords(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(records) != tt.expect {
				t.Fatalf("expected %d records, got %d", tt.expect, len(records))
			}
		})
	}
}

func TestLoadPostingRecordsDecodes(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "jobs.yaml", `
postings:
  - title: Go Developer
    company: Acme
    url: https://x/1
    source: linkedin
    skills: [Go, Kafka]
    scraped_at: 2024-05-01
  - just a string
`)

	records, err := LoadPostingRecords(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	postings, rejected := jobs.DecodePostings(records)
	if len(postings) != 2 || len(rejected) != 0 {
		t.Fatalf("expected 2 postings and no rejected records, got %d and %d", len(postings), len(rejected))
	}
	if postings[0].ScrapedAt.IsZero() || len(postings[0].Skills) != 2 {
		t.Fatalf("unexpected decoded posting %+v", postings[0])
	}
	if err := postings[1].Validate(); !errors.Is(err, jobs.ErrMalformedPosting) {
		t.Fatalf("expected non-object element to be malformed, got %v", err)
	}
}

func TestLoadPostingRecordsShape(t *testing.T) {
	t.Parallel()

	if _, err := LoadPostingRecords(writeFile(t, "jobs.json", `{"foo":1}`)); !errors.Is(err, ErrUnexpectedShape) {
		t.Fatalf("expected ErrUnexpectedShape, got %v", err)
	}
	if _, err := LoadPostingRecords(writeFile(t, "jobs.json", `"text"`)); !errors.Is(err, ErrUnexpectedShape) {
		t.Fatalf("expected ErrUnexpectedShape, got %v", err)
	}
	if _, err := LoadPostingRecords(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadResume(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "resume.yaml", `
name: Jane
skills:
  - name: Python
    level: expert
  - name: AWS
experience_years: 4
current_location: Bangalore
preferred_locations: [Remote, Pune]
about: Backend engineer
projects:
  - name: Crawler
    description: Scrapes job boards
`)

	resume, err := LoadResume(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resume.Skills) != 2 || resume.Skills[0] != "AWS" || resume.Skills[1] != "Python" {
		t.Fatalf("unexpected skills %v", resume.Skills)
	}
	if resume.ExperienceYears != 4 || resume.CurrentLocation != "Bangalore" || len(resume.PreferredLocations) != 2 {
		t.Fatalf("unexpected resume %+v", resume)
	}
	if len(resume.Projects) != 1 || resume.Projects[0].Description != "Scrapes job boards" {
		t.Fatalf("unexpected projects %+v", resume.Projects)
	}

	if _, err := LoadResume(writeFile(t, "resume.json", `[1,2]`)); !errors.Is(err, ErrUnexpectedShape) {
		t.Fatalf("expected ErrUnexpectedShape, got %v", err)
	}
}
