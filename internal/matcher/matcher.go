package matcher

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/dedup"
	"github.com/spigell/jobmatch/internal/embedding"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/index"
	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/scoring"
)

// ErrResumeEmbedding fails a run whose resume could not be embedded.
var ErrResumeEmbedding = errors.New("resume embedding failed")

var tracer = otel.Tracer("github.com/spigell/jobmatch/internal/matcher")

// Deps are the collaborators of a Matcher. Only Embedder is required.
type Deps struct {
	Embedder     embedding.Embedder
	Indexes      index.Factory
	Deduplicator *dedup.Deduplicator
	Scorer       *scoring.Scorer
	Filters      *filtering.Filtering
	Logger       *zap.Logger
}

// Matcher ranks postings against a resume. A Matcher holds no per-run state
// and may serve concurrent runs.
type Matcher struct {
	cfg      Config
	embedder embedding.Embedder
	indexes  index.Factory
	dedup    *dedup.Deduplicator
	scorer   *scoring.Scorer
	filters  *filtering.Filtering
	logger   *zap.Logger
}

func New(cfg Config, deps Deps) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}

	m := &Matcher{
		cfg:      cfg,
		embedder: deps.Embedder,
		indexes:  deps.Indexes,
		dedup:    deps.Deduplicator,
		scorer:   deps.Scorer,
		filters:  deps.Filters,
		logger:   logger.OrNop(deps.Logger),
	}

	if m.indexes == nil {
		m.indexes = index.MemoryFactory()
	}
	if m.dedup == nil {
		m.dedup = dedup.New(dedup.DefaultThreshold, m.logger)
	}
	if m.scorer == nil {
		m.scorer = scoring.Default()
	}

	return m, nil
}

func (m *Matcher) Config() Config { return m.cfg }

// Run executes one matching run. The caller's postings are not modified.
// A failed run returns the partial report together with the error.
func (m *Matcher) Run(ctx context.Context, resume *jobs.Resume, postings []*jobs.Posting) (*Report, error) {
	ctx, span := tracer.Start(ctx, "matcher.Run", trace.WithAttributes(attribute.Int("postings.input", len(postings))))
	defer span.End()

	report := &Report{Results: []jobs.MatchResult{}, Postings: []*jobs.Posting{}}
	report.enter(StateInit)

	fail := func(err error) (*Report, error) {
		report.enter(StateFailed)
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("matching run failed", zap.Error(err))
		return report, err
	}

	if resume == nil {
		return fail(fmt.Errorf("%w: missing resume", jobs.ErrInvalidResume))
	}
	if err := resume.Validate(); err != nil {
		return fail(err)
	}

	batch := m.prepare(report, postings)

	if m.filters != nil {
		filtered, steps, err := m.filters.Run(ctx, &jobs.Postings{Items: batch})
		if err != nil {
			return fail(fmt.Errorf("filtering: %w", err))
		}
		report.Filters = steps
		batch = filtered.Items
	}

	report.enter(StateDeduplicating)
	canonical := m.deduplicate(ctx, batch)
	report.Postings = canonical
	span.SetAttributes(attribute.Int("postings.canonical", len(canonical)))

	if len(canonical) == 0 {
		m.logger.Info("no postings to rank")
		report.enter(StateRanked)
		return report, nil
	}

	report.enter(StateEmbedding)
	embedder := m.runEmbedder()
	resumeVector, err := m.embedResume(ctx, embedder, resume)
	if err != nil {
		return fail(err)
	}
	vectors := m.embedPostings(ctx, embedder, report, canonical)

	report.enter(StateIndexing)
	idx, err := m.buildIndex(ctx, len(resumeVector), canonical, vectors)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := idx.Close(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("closing index failed", zap.Error(err))
		}
	}()

	report.enter(StateScoring)
	semantic, err := m.querySemantic(ctx, idx, resumeVector)
	if err != nil {
		return fail(err)
	}
	results := m.score(resume, canonical, vectors, semantic)

	report.Results = m.rank(results, canonical)
	report.enter(StateRanked)

	m.logger.Info("matching run finished",
		zap.Int("postings", len(canonical)),
		zap.Int("embedded", len(vectors)),
		zap.Int("results", len(report.Results)),
		zap.Int("diagnostics", len(report.Diagnostics)),
	)

	return report, nil
}

// prepare copies the input and drops malformed postings and repeated ids.
// A repeated id is kept only when dedup will merge it into the first posting
// carrying that id, so every id left in the batch names one canonical posting.
func (m *Matcher) prepare(report *Report, postings []*jobs.Posting) []*jobs.Posting {
	batch := make([]*jobs.Posting, 0, len(postings))
	firsts := make(map[string]*jobs.Posting, len(postings))

	for i, p := range postings {
		if err := p.Validate(); err != nil {
			id := ""
			if p != nil {
				id = p.ID
			}
			m.logger.Warn("dropping malformed posting",
				zap.Int("index", i),
				zap.String(logger.FieldPostingID, id),
				zap.Error(err),
			)
			report.diagnose(Diagnostic{PostingID: id, Index: i, Kind: DiagnosticMalformed, Message: err.Error()})
			continue
		}

		c := p.Clone()
		if c.ID == "" {
			c.ID = jobs.NewID(c.Title, c.Company, c.Location, c.Source)
		}
		if len(c.Sources) == 0 {
			c.Sources = []string{c.Source}
		}

		if first, ok := firsts[c.ID]; ok && !m.dedup.Duplicates(first, c) {
			m.logger.Warn("dropping posting with a repeated id",
				zap.Int("index", i),
				zap.String(logger.FieldPostingID, c.ID),
			)
			report.diagnose(Diagnostic{
				PostingID: c.ID,
				Index:     i,
				Kind:      DiagnosticDuplicateID,
				Message:   fmt.Sprintf("id already used by %q at a different posting", first.Title),
			})
			continue
		}
		if _, ok := firsts[c.ID]; !ok {
			firsts[c.ID] = c
		}

		batch = append(batch, c)
	}

	return batch
}

func (m *Matcher) deduplicate(ctx context.Context, batch []*jobs.Posting) []*jobs.Posting {
	_, span := tracer.Start(ctx, "matcher.Dedupe")
	defer span.End()

	canonical := m.dedup.Dedupe(batch)
	span.SetAttributes(attribute.Int("postings.before", len(batch)), attribute.Int("postings.after", len(canonical)))
	return canonical
}

// runEmbedder scopes per-run embedder state, such as an in-process cache, to a
// single Run.
func (m *Matcher) runEmbedder() embedding.Embedder {
	if scoped, ok := m.embedder.(embedding.RunScoped); ok {
		return scoped.ForRun()
	}
	return m.embedder
}

func (m *Matcher) embedResume(ctx context.Context, embedder embedding.Embedder, resume *jobs.Resume) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "matcher.EmbedResume")
	defer span.End()

	vector, err := embedder.Embed(ctx, embedding.ResumeText(resume))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrResumeEmbedding, err)
	}
	return vector, nil
}

// buildIndex adds embedded postings in canonical order.
func (m *Matcher) buildIndex(ctx context.Context, dimension int, canonical []*jobs.Posting, vectors map[string][]float32) (index.Index, error) {
	ctx, span := tracer.Start(ctx, "matcher.Index")
	defer span.End()

	idx, err := m.indexes(ctx, dimension)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	for _, p := range canonical {
		vector, ok := vectors[p.ID]
		if !ok {
			continue
		}
		metadata := map[string]string{"title": p.Title, "company": p.Company, "source": p.Source}
		if err := idx.Add(ctx, p.ID, vector, metadata); err != nil {
			if cerr := idx.Close(context.WithoutCancel(ctx)); cerr != nil {
				m.logger.Warn("closing index failed", zap.Error(cerr))
			}
			span.RecordError(err)
			return nil, fmt.Errorf("index posting %s: %w", p.ID, err)
		}
	}

	span.SetAttributes(attribute.Int("index.size", idx.Len()), attribute.Int("index.dimension", dimension))
	return idx, nil
}

// querySemantic returns the clamped cosine similarity of every hit by posting id.
func (m *Matcher) querySemantic(ctx context.Context, idx index.Index, resumeVector []float32) (map[string]float64, error) {
	ctx, span := tracer.Start(ctx, "matcher.Query")
	defer span.End()

	semantic := make(map[string]float64, idx.Len())
	if idx.Len() == 0 {
		return semantic, nil
	}

	hits, err := idx.Query(ctx, resumeVector, m.cfg.TopK)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query index: %w", err)
	}

	for _, hit := range hits {
		semantic[hit.ID] = scoring.Clamp(hit.Similarity)
	}
	span.SetAttributes(attribute.Int("index.hits", len(hits)))
	return semantic, nil
}
