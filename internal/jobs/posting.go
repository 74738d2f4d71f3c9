package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PostingIDField      = "ID"
	PostingCompanyField = "Company"
	PostingURLField     = "URL"
)

// ErrMalformedPosting is returned for postings missing required fields.
var ErrMalformedPosting = errors.New("malformed posting")

// postingNamespace seeds name-based posting identifiers.
var postingNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("jobmatch.posting"))

// Posting is a single job listing, either as scraped or after deduplication.
type Posting struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Company       string    `json:"company,omitempty"`
	Location      string    `json:"location,omitempty"`
	Description   string    `json:"description,omitempty"`
	Skills        []string  `json:"skills,omitempty"`
	URL           string    `json:"url"`
	Source        string    `json:"source"`
	Sources       []string  `json:"sources,omitempty"`
	ScrapedAt     time.Time `json:"scraped_at"`
	MinExperience *float64  `json:"min_experience,omitempty"`
	MaxExperience *float64  `json:"max_experience,omitempty"`
}

type Postings struct {
	Items []*Posting
}

// NewID derives the stable posting identifier from the identifying fields.
// Fields are normalized first, so cosmetic differences keep the same id.
func NewID(title, company, location, source string) string {
	key := strings.Join([]string{
		NormalizeText(title),
		NormalizeText(company),
		NormalizeText(location),
		NormalizeText(source),
	}, "\x1f")

	return uuid.NewSHA1(postingNamespace, []byte(key)).String()
}

// NormalizeText lower-cases s and collapses all whitespace runs into single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Validate reports whether the posting carries the fields the matcher relies on.
func (p *Posting) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: empty record", ErrMalformedPosting)
	}

	var missing []string
	if strings.TrimSpace(p.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(p.Source) == "" {
		missing = append(missing, "source")
	}
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Description) == "" {
		missing = append(missing, "title or description")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedPosting, strings.Join(missing, ", "))
	}

	return nil
}

// HasExperienceRange reports whether an explicit experience requirement is set.
func (p *Posting) HasExperienceRange() bool {
	return p.MinExperience != nil || p.MaxExperience != nil
}

func (p *Posting) GetStringField(name string) string {
	switch name {
	case PostingIDField:
		return p.ID
	case PostingCompanyField:
		return p.Company
	case PostingURLField:
		return p.URL
	default:
		return ""
	}
}

// Clone returns a deep copy of the posting.
func (p *Posting) Clone() *Posting {
	if p == nil {
		return nil
	}

	c := *p
	c.Skills = append([]string(nil), p.Skills...)
	c.Sources = append([]string(nil), p.Sources...)
	if p.MinExperience != nil {
		v := *p.MinExperience
		c.MinExperience = &v
	}
	if p.MaxExperience != nil {
		v := *p.MaxExperience
		c.MaxExperience = &v
	}

	return &c
}

func (p *Postings) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

func (p *Postings) FindByID(id string) *Posting {
	for _, posting := range p.Items {
		if posting.ID == id {
			return posting
		}
	}
	return nil
}

func (p *Postings) IDs() []string {
	ids := make([]string, 0, p.Len())
	for _, posting := range p.Items {
		ids = append(ids, posting.ID)
	}
	return ids
}

// Exclude removes postings whose field matches one of targets, comparing
// case-insensitively. Order of the remaining postings is preserved.
// It returns the ids of removed postings.
func (p *Postings) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if target = NormalizeText(target); target != "" {
			set[target] = struct{}{}
		}
	}

	var excluded []string
	kept := p.Items[:0]
	for _, posting := range p.Items {
		if _, ok := set[NormalizeText(posting.GetStringField(name))]; ok {
			excluded = append(excluded, posting.ID)
			continue
		}
		kept = append(kept, posting)
	}
	p.Items = kept

	return excluded
}

// Filter keeps the postings for which keep returns true and returns the ids of dropped ones.
func (p *Postings) Filter(keep func(*Posting) bool) []string {
	var dropped []string
	kept := p.Items[:0]
	for _, posting := range p.Items {
		if keep(posting) {
			kept = append(kept, posting)
			continue
		}
		dropped = append(dropped, posting.ID)
	}
	p.Items = kept

	return dropped
}

func (p *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Items); err != nil {
		return "", err
	}
	return file.Name(), nil
}
