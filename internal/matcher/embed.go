package matcher

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobmatch/internal/embedding"
	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
)

// embedPostings embeds every posting with at most cfg.Concurrency requests in
// flight. Results are collected by posting id and returned only after every
// request has resolved or the stage timeout fired. Failed postings get a
// diagnostic and no vector.
func (m *Matcher) embedPostings(ctx context.Context, embedder embedding.Embedder, report *Report, postings []*jobs.Posting) map[string][]float32 {
	ctx, span := tracer.Start(ctx, "matcher.EmbedPostings")
	defer span.End()

	if m.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.EmbedTimeout)
		defer cancel()
	}

	var mu sync.Mutex
	vectors := make(map[string][]float32, len(postings))
	failures := make(map[string]error)

	g := new(errgroup.Group)
	g.SetLimit(m.cfg.Concurrency)

	for _, p := range postings {
		g.Go(func() error {
			vector, err := embedder.Embed(ctx, embedding.PostingText(p))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[p.ID] = err
				return nil
			}
			vectors[p.ID] = vector
			return nil
		})
	}
	// Workers never return errors, failures are kept per posting.
	_ = g.Wait()

	for _, p := range postings {
		err, ok := failures[p.ID]
		if !ok {
			continue
		}
		m.logger.Warn("posting embedding failed, using structured score only",
			zap.String(logger.FieldPostingID, p.ID),
			zap.Error(err),
		)
		report.diagnose(Diagnostic{PostingID: p.ID, Index: -1, Kind: DiagnosticEmbedding, Message: err.Error()})
	}

	span.SetAttributes(attribute.Int("embedded", len(vectors)), attribute.Int("failed", len(failures)))
	return vectors
}
