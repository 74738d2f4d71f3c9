package jobs

import (
	"errors"
	"testing"
)

func TestNewIDIsStableAcrossCosmeticChanges(t *testing.T) {
	t.Parallel()

	a := NewID("Go Developer", "Acme", "Berlin", "linkedin")
	b := NewID("  go   developer ", "ACME", "berlin", "LinkedIn")
	if a != b {
		t.Fatalf("expected equal ids, got %q and %q", a, b)
	}

	if c := NewID("Go Developer", "Acme", "Munich", "linkedin"); c == a {
		t.Fatalf("expected different id for different location")
	}
}

func TestPostingValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		posting *Posting
		wantErr bool
	}{
		{
			name:    "complete",
			posting: &Posting{Title: "Go Developer", URL: "https://example.com/1", Source: "naukri"},
		},
		{
			name:    "description only",
			posting: &Posting{Description: "Build services", URL: "https://example.com/1", Source: "naukri"},
		},
		{
			name:    "missing url",
			posting: &Posting{Title: "Go Developer", Source: "naukri"},
			wantErr: true,
		},
		{
			name:    "missing source",
			posting: &Posting{Title: "Go Developer", URL: "https://example.com/1"},
			wantErr: true,
		},
		{
			name:    "no title and no description",
			posting: &Posting{URL: "https://example.com/1", Source: "naukri"},
			wantErr: true,
		},
		{
			name:    "nil",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.posting.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPosting) {
					t.Fatalf("expected ErrMalformedPosting, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestPostingsExcludePreservesOrder(t *testing.T) {
	t.Parallel()

	postings := &Postings{Items: []*Posting{
		{ID: "1", Company: "Acme"},
		{ID: "2", Company: "Globex"},
		{ID: "3", Company: "acme "},
		{ID: "4", Company: "Initech"},
	}}

	excluded := postings.Exclude(PostingCompanyField, []string{"ACME"})
	if len(excluded) != 2 || excluded[0] != "1" || excluded[1] != "3" {
		t.Fatalf("unexpected excluded ids: %v", excluded)
	}

	ids := postings.IDs()
	if len(ids) != 2 || ids[0] != "2" || ids[1] != "4" {
		t.Fatalf("unexpected remaining ids: %v", ids)
	}

	if postings.FindByID("4") == nil {
		t.Fatalf("expected to find posting 4")
	}
	if postings.FindByID("1") != nil {
		t.Fatalf("expected posting 1 to be excluded")
	}
}

func TestPostingClone(t *testing.T) {
	t.Parallel()

	minYears := 3.0
	original := &Posting{ID: "1", Skills: []string{"Go"}, Sources: []string{"a"}, MinExperience: &minYears}
	clone := original.Clone()

	clone.Skills[0] = "Rust"
	*clone.MinExperience = 5

	if original.Skills[0] != "Go" {
		t.Fatalf("expected original skills to be untouched")
	}
	if *original.MinExperience != 3 {
		t.Fatalf("expected original experience to be untouched")
	}
}
