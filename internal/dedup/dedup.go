package dedup

import (
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
)

// DefaultThreshold is the similarity two postings must exceed to be merged.
const DefaultThreshold = 0.85

type Deduplicator struct {
	threshold float64
	logger    *zap.Logger
}

type cluster struct {
	members []*jobs.Posting
}

func (c *cluster) seed() *jobs.Posting { return c.members[0] }

// New creates a Deduplicator. A non-positive threshold selects DefaultThreshold.
func New(threshold float64, log *zap.Logger) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold, logger: logger.OrNop(log)}
}

func (d *Deduplicator) Threshold() float64 { return d.threshold }

// Dedupe collapses near-identical postings into canonical records. The output
// keeps the order of first appearance of every cluster and never grows.
// Clustering repeats on the merged records until nothing merges, so
// Dedupe(Dedupe(x)) equals Dedupe(x).
func (d *Deduplicator) Dedupe(postings []*jobs.Posting) []*jobs.Posting {
	for _, p := range postings {
		if blockKey(p) == "" {
			d.logger.Info("low quality posting passed through unmerged",
				zap.String(logger.FieldPostingID, p.ID),
				zap.String("reason", "empty title"),
				zap.String("url", p.URL),
			)
		}
	}

	current := postings
	for pass := 1; ; pass++ {
		next, merged := d.pass(current)
		d.logger.Debug("dedup pass",
			zap.Int("pass", pass),
			zap.Int("input", len(current)),
			zap.Int("output", len(next)),
		)
		current = next
		if !merged {
			break
		}
	}

	if dropped := len(postings) - len(current); dropped > 0 {
		d.logger.Info("merged duplicate postings",
			zap.Int("initial", len(postings)),
			zap.Int("merged", dropped),
			zap.Int("left", len(current)),
		)
	}

	return current
}

// Duplicates reports whether two postings describe the same job.
func (d *Deduplicator) Duplicates(a, b *jobs.Posting) bool {
	key := blockKey(a)
	if key == "" || key != blockKey(b) {
		return false
	}
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if !compatible(a, b) {
		return false
	}
	return Similarity(a, b) > d.threshold
}

func (d *Deduplicator) pass(postings []*jobs.Posting) ([]*jobs.Posting, bool) {
	clusters := make([]*cluster, 0, len(postings))
	blocks := make(map[string][]*cluster)
	merged := false

	for _, p := range postings {
		key := blockKey(p)
		if key == "" {
			clusters = append(clusters, &cluster{members: []*jobs.Posting{p}})
			continue
		}

		var target *cluster
		for _, c := range blocks[key] {
			if d.Duplicates(c.seed(), p) {
				target = c
				break
			}
		}

		if target == nil {
			c := &cluster{members: []*jobs.Posting{p}}
			clusters = append(clusters, c)
			blocks[key] = append(blocks[key], c)
			continue
		}

		target.members = append(target.members, p)
		merged = true
	}

	out := make([]*jobs.Posting, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, Merge(c.members...))
	}

	return out, merged
}

func blockKey(p *jobs.Posting) string {
	return jobs.NormalizeText(p.Title)
}

type axis int

const (
	axisWildcard axis = iota
	axisMatch
	axisConflict
)

func compareAxis(a, b string) axis {
	a, b = jobs.NormalizeText(a), jobs.NormalizeText(b)
	switch {
	case a == "" || b == "":
		return axisWildcard
	case a == b:
		return axisMatch
	default:
		return axisConflict
	}
}

// compatible requires no conflicting axis and at least one matching one.
// An empty company or location is a wildcard and never counts as a match.
func compatible(a, b *jobs.Posting) bool {
	company := compareAxis(a.Company, b.Company)
	location := compareAxis(a.Location, b.Location)

	if company == axisConflict || location == axisConflict {
		return false
	}
	return company == axisMatch || location == axisMatch
}
