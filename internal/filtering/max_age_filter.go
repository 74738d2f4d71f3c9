package filtering

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/jobmatch/internal/jobs"
)

type maxAgeFilter struct {
	toggle
	maxAge time.Duration
	now    func() time.Time
}

// NewMaxAge creates a filter that removes postings scraped longer than maxAge ago.
// Postings without a scrape timestamp are kept. A zero maxAge keeps everything.
func NewMaxAge(maxAge time.Duration, now func() time.Time) Filter {
	if now == nil {
		now = time.Now
	}
	return &maxAgeFilter{maxAge: maxAge, now: now}
}

func (f *maxAgeFilter) Name() string { return "max_age" }

func (f *maxAgeFilter) Validate() error {
	if f.maxAge < 0 {
		return fmt.Errorf("max age must not be negative, got %s", f.maxAge)
	}
	return nil
}

func (f *maxAgeFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	if f.maxAge == 0 {
		return p, stepOf(initial, nil, p), nil
	}

	cutoff := f.now().Add(-f.maxAge)
	dropped := p.Filter(func(posting *jobs.Posting) bool {
		return posting.ScrapedAt.IsZero() || !posting.ScrapedAt.Before(cutoff)
	})

	return p, stepOf(initial, dropped, p), nil
}

func (f *maxAgeFilter) Status() Status {
	details := map[string]string{}
	if f.maxAge > 0 {
		details["max_age"] = f.maxAge.String()
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
