package filtering

import (
	"context"

	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/scoring"
)

type remoteOnlyFilter struct {
	toggle
}

// NewRemoteOnly creates a filter that keeps remote postings only.
func NewRemoteOnly() Filter {
	return &remoteOnlyFilter{}
}

func (f *remoteOnlyFilter) Name() string { return "remote_only" }

func (f *remoteOnlyFilter) Validate() error { return nil }

func (f *remoteOnlyFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	dropped := p.Filter(func(posting *jobs.Posting) bool {
		return scoring.IsRemote(posting.Location)
	})
	return p, stepOf(initial, dropped, p), nil
}
