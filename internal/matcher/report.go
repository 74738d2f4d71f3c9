package matcher

import (
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/jobs"
)

// State is a stage of a matching run.
type State string

const (
	StateInit          State = "init"
	StateDeduplicating State = "deduplicating"
	StateEmbedding     State = "embedding"
	StateIndexing      State = "indexing"
	StateScoring       State = "scoring"
	StateRanked        State = "ranked"
	StateFailed        State = "failed"
)

const (
	DiagnosticUndecodable = "undecodable_record"
	DiagnosticMalformed   = "malformed_posting"
	DiagnosticDuplicateID = "duplicate_id"
	DiagnosticEmbedding   = "embedding_unavailable"
)

// Diagnostic records a condition absorbed during the run.
type Diagnostic struct {
	PostingID string `json:"posting_id,omitempty"`
	// Index is the position in the raw record list for undecodable records and
	// in the batch passed to Run otherwise, -1 when unknown.
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the outcome of a run. Results resolve to Postings by id.
type Report struct {
	State       State              `json:"state"`
	Transitions []State            `json:"transitions"`
	Results     []jobs.MatchResult `json:"results"`
	Postings    []*jobs.Posting    `json:"postings"`
	Filters     []filtering.Step   `json:"filters,omitempty"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (r *Report) enter(state State) {
	r.State = state
	r.Transitions = append(r.Transitions, state)
}

func (r *Report) diagnose(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// Posting returns the canonical posting with the given id.
func (r *Report) Posting(id string) *jobs.Posting {
	for _, p := range r.Postings {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AddRejected records raw records that could not be decoded into postings.
func (r *Report) AddRejected(rejected []jobs.Rejected) {
	for _, rej := range rejected {
		r.diagnose(Diagnostic{Index: rej.Index, Kind: DiagnosticUndecodable, Message: rej.Err.Error()})
	}
}
