package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobmatch/internal/embedding"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/index"
	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/scoring"
)

type embedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func hashingEmbedder() embedding.Embedder {
	return embedding.NewService(embedding.NewHashing(64), embedding.Options{})
}

// failingFor wraps the hashing embedder and fails for texts containing marker.
func failingFor(marker string, err error) embedding.Embedder {
	base := hashingEmbedder()
	return embedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(strings.ToLower(text), marker) {
			return nil, err
		}
		return base.Embed(ctx, text)
	})
}

func testResume() *jobs.Resume {
	return &jobs.Resume{
		Name:               "Jane",
		Skills:             []string{"Python", "AWS"},
		ExperienceYears:    4,
		CurrentLocation:    "Bangalore",
		PreferredLocations: []string{"Remote"},
		About:              "Backend engineer building Python services on AWS.",
		Projects:           []jobs.Project{{Name: "Crawler", Description: "Scrapes job boards with Python."}},
	}
}

func newPosting(title, company, location, description, source string, skills []string, scrapedAt time.Time) *jobs.Posting {
	p := &jobs.Posting{
		Title:       title,
		Company:     company,
		Location:    location,
		Description: description,
		Skills:      skills,
		URL:         "https://jobs.example/" + strings.ReplaceAll(strings.ToLower(title+"-"+source), " ", "-"),
		Source:      source,
		Sources:     []string{source},
		ScrapedAt:   scrapedAt,
	}
	p.ID = jobs.NewID(p.Title, p.Company, p.Location, p.Source)
	return p
}

func testPostings() []*jobs.Posting {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return []*jobs.Posting{
		newPosting("Python Developer", "Acme", "Bangalore", "Build Python APIs on AWS. 3-5 years experience.", "linkedin", []string{"Python", "Django"}, base),
		newPosting("Python Developer", "Acme", "Bangalore", "Build Python APIs on AWS. 3-5 years experience.", "naukri", []string{"Python", "AWS"}, base.Add(time.Hour)),
		newPosting("Frontend Engineer", "Globex", "Remote", "React and TypeScript user interfaces.", "linkedin", []string{"React"}, base),
		newPosting("Data Engineer", "Initech", "Pune", "Spark pipelines. 8+ years experience.", "naukri", []string{"Spark", "Python"}, base),
		newPosting("DevOps Engineer", "Hooli", "", "Kubernetes and AWS infrastructure.", "company", nil, base),
	}
}

func newMatcher(t *testing.T, cfg Config, deps Deps) *Matcher {
	t.Helper()
	m, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m
}

func TestRunRanksDedupedPostings(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder()})
	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if report.State != StateRanked {
		t.Fatalf("expected ranked state, got %s", report.State)
	}
	expectTransitions := []State{StateInit, StateDeduplicating, StateEmbedding, StateIndexing, StateScoring, StateRanked}
	if len(report.Transitions) != len(expectTransitions) {
		t.Fatalf("unexpected transitions %v", report.Transitions)
	}
	for i, state := range expectTransitions {
		if report.Transitions[i] != state {
			t.Fatalf("transition %d: expected %s, got %s", i, state, report.Transitions[i])
		}
	}

	if len(report.Results) != 4 || len(report.Postings) != 4 {
		t.Fatalf("expected 4 canonical postings, got %d results and %d postings", len(report.Results), len(report.Postings))
	}

	merged := report.Postings[0]
	if len(merged.Sources) != 2 {
		t.Fatalf("expected merged sources, got %v", merged.Sources)
	}

	for i, result := range report.Results {
		if result.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, result.Rank)
		}
		if !result.SemanticAvailable {
			t.Fatalf("expected semantic score for %s", result.PostingID)
		}
		for _, score := range []float64{result.CombinedScore, result.StructuredScore, result.SemanticScore} {
			if score < 0 || score > 1 {
				t.Fatalf("score out of bounds: %+v", result)
			}
		}
		if report.Posting(result.PostingID) == nil {
			t.Fatalf("result %s does not resolve to a posting", result.PostingID)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Concurrency = 8

	var outputs []string
	for i := 0; i < 5; i++ {
		m := newMatcher(t, cfg, Deps{Embedder: hashingEmbedder()})
		report, err := m.Run(context.Background(), testResume(), testPostings())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		data, err := json.Marshal(report.Results)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		outputs = append(outputs, string(data))
	}

	for i := 1; i < len(outputs); i++ {
		if outputs[i] != outputs[0] {
			t.Fatalf("run %d differs from run 0:\n%s\n%s", i, outputs[i], outputs[0])
		}
	}
}

func TestRunScopesEmbeddingCache(t *testing.T) {
	t.Parallel()

	var caches []*embedding.MemoryCache
	service := embedding.NewService(embedding.NewHashing(64), embedding.Options{
		NewCache: func() embedding.Cache {
			c := embedding.NewMemoryCache()
			caches = append(caches, c)
			return c
		},
	})
	m := newMatcher(t, DefaultConfig(), Deps{Embedder: service})

	for i := 0; i < 2; i++ {
		if _, err := m.Run(context.Background(), testResume(), testPostings()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// One cache from NewService, then one per run.
	if len(caches) != 3 {
		t.Fatalf("expected a cache per run, got %d caches", len(caches))
	}
	if caches[0].Len() != 0 {
		t.Fatalf("expected the service-level cache to stay empty, got %d entries", caches[0].Len())
	}
	if caches[1].Len() == 0 || caches[1].Len() != caches[2].Len() {
		t.Fatalf("expected each run to fill only its own cache, got %d and %d", caches[1].Len(), caches[2].Len())
	}
}

func TestRunRankingIsMonotonic(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder()})
	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, a := range report.Results {
		for _, b := range report.Results {
			if a.CombinedScore > b.CombinedScore && a.Rank >= b.Rank {
				t.Fatalf("%s scores higher than %s but ranks %d vs %d", a.PostingID, b.PostingID, a.Rank, b.Rank)
			}
		}
	}
}

func TestRunFallsBackToStructuredScore(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.WarnLevel)
	m := newMatcher(t, DefaultConfig(), Deps{
		Embedder: failingFor("frontend engineer", embedding.ErrUnavailable),
		Logger:   zap.New(core),
	})

	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	frontend := testPostings()[2].ID
	var found bool
	for _, result := range report.Results {
		if result.PostingID != frontend {
			continue
		}
		found = true
		if result.SemanticAvailable || result.SemanticScore != 0 {
			t.Fatalf("expected no semantic score, got %+v", result)
		}
		if result.CombinedScore != result.StructuredScore {
			t.Fatalf("expected combined score to equal structured score, got %+v", result)
		}
		expect := scoring.Default().Score(testResume(), report.Posting(frontend))
		if result.StructuredScore != expect {
			t.Fatalf("expected structured score %v, got %v", expect, result.StructuredScore)
		}
	}
	if !found {
		t.Fatalf("posting with failed embedding must still be ranked")
	}

	if len(report.Diagnostics) != 1 || report.Diagnostics[0].Kind != DiagnosticEmbedding || report.Diagnostics[0].PostingID != frontend {
		t.Fatalf("unexpected diagnostics %+v", report.Diagnostics)
	}
	if observed.FilterMessage("posting embedding failed, using structured score only").Len() != 1 {
		t.Fatalf("expected embedding failure to be logged")
	}
}

func TestRunFailsWhenResumeCannotBeEmbedded(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: failingFor("backend engineer", embedding.ErrUnavailable)})

	report, err := m.Run(context.Background(), testResume(), testPostings())
	if !errors.Is(err, ErrResumeEmbedding) || !errors.Is(err, embedding.ErrUnavailable) {
		t.Fatalf("expected resume embedding error, got %v", err)
	}
	if report.State != StateFailed || len(report.Results) != 0 {
		t.Fatalf("expected failed run without results, got %s with %d results", report.State, len(report.Results))
	}
	last := report.Transitions[len(report.Transitions)-2]
	if last != StateEmbedding {
		t.Fatalf("expected failure during embedding, got %s", last)
	}
}

func TestRunFailsOnDimensionMismatch(t *testing.T) {
	t.Parallel()

	base := hashingEmbedder()
	embedder := embedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		vector, err := base.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(text), "data engineer") {
			return vector[:32], nil
		}
		return vector, nil
	})

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: embedder})
	report, err := m.Run(context.Background(), testResume(), testPostings())
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if report.State != StateFailed || len(report.Results) != 0 {
		t.Fatalf("expected failed run without partial results")
	}
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	embedder := embedderFunc(func(context.Context, string) ([]float32, error) {
		calls.Add(1)
		return []float32{1}, nil
	})

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: embedder})
	report, err := m.Run(context.Background(), testResume(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.State != StateRanked || report.Results == nil || len(report.Results) != 0 {
		t.Fatalf("expected empty ranked result, got %+v", report)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no embedding calls for an empty batch")
	}

	data, _ := json.Marshal(report.Results)
	if string(data) != "[]" {
		t.Fatalf("expected empty list to serialize as [], got %s", data)
	}
}

func TestRunDropsMalformedPostings(t *testing.T) {
	t.Parallel()

	postings := testPostings()
	postings = append(postings, &jobs.Posting{Title: "No URL", Source: "x"}, nil)
	originalSkills := append([]string(nil), postings[0].Skills...)

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder()})
	report, err := m.Run(context.Background(), testResume(), postings)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var malformed []Diagnostic
	for _, d := range report.Diagnostics {
		if d.Kind == DiagnosticMalformed {
			malformed = append(malformed, d)
		}
	}
	if len(malformed) != 2 || malformed[0].Index != 5 || malformed[1].Index != 6 {
		t.Fatalf("unexpected malformed diagnostics %+v", malformed)
	}
	if !errors.Is(postings[5].Validate(), jobs.ErrMalformedPosting) {
		t.Fatalf("expected malformed posting")
	}

	if len(postings[0].Skills) != len(originalSkills) || len(postings[0].Sources) != 1 {
		t.Fatalf("caller's postings must not be modified")
	}
}

func TestRunDropsRepeatedIDs(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	goDev := newPosting("Go Developer", "Acme", "Bangalore", "Go services on AWS.", "board", []string{"Go"}, base)
	rustDev := newPosting("Rust Developer", "Globex", "Remote", "Rust systems work.", "board", []string{"Rust"}, base)
	repost := newPosting("Go Developer", "Acme", "Bangalore", "Go services on AWS, relocation offered.", "mirror", []string{"AWS"}, base)
	goDev.ID, rustDev.ID, repost.ID = "job-1", "job-1", "job-1"

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder()})

	var first []byte
	for run := 0; run < 5; run++ {
		report, err := m.Run(context.Background(), testResume(), []*jobs.Posting{goDev, rustDev, repost})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(report.Results) != 1 || len(report.Postings) != 1 {
			t.Fatalf("expected one posting per id, got %d results and %d postings", len(report.Results), len(report.Postings))
		}
		kept := report.Posting("job-1")
		if kept == nil || kept.Title != "Go Developer" || len(kept.Sources) != 2 {
			t.Fatalf("expected the first posting merged with its repost, got %+v", kept)
		}

		var repeated []Diagnostic
		for _, d := range report.Diagnostics {
			if d.Kind == DiagnosticDuplicateID {
				repeated = append(repeated, d)
			}
		}
		if len(repeated) != 1 || repeated[0].Index != 1 || repeated[0].PostingID != "job-1" {
			t.Fatalf("unexpected duplicate id diagnostics %+v", repeated)
		}

		data, err := json.Marshal(report.Results)
		if err != nil {
			t.Fatalf("marshal results: %v", err)
		}
		if first == nil {
			first = data
		} else if string(first) != string(data) {
			t.Fatalf("results differ between runs:\n%s\n%s", first, data)
		}
	}
}

func TestRunDropsUntitledRepeats(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a := newPosting("", "Acme", "", "Python backend work.", "board", nil, base)
	b := newPosting("", "Acme", "", "Python backend work, duplicated.", "board", nil, base)
	b.ID = a.ID

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder()})
	report, err := m.Run(context.Background(), testResume(), []*jobs.Posting{a, b})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(report.Results))
	}
	if len(report.Diagnostics) != 1 || report.Diagnostics[0].Kind != DiagnosticDuplicateID {
		t.Fatalf("unexpected diagnostics %+v", report.Diagnostics)
	}
}

func TestRunTieBreaks(t *testing.T) {
	t.Parallel()

	// A constant vector gives every posting the same semantic score.
	embedder := embedderFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	})

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	older := newPosting("Go Developer", "A", "Pune", "Go services.", "x", nil, base)
	newer := newPosting("Rust Developer", "B", "Pune", "Rust services.", "x", nil, base.Add(time.Hour))
	sameA := newPosting("Java Developer", "C", "Pune", "Java services.", "x", nil, base.Add(-time.Hour))
	sameB := newPosting("Kotlin Developer", "D", "Pune", "Kotlin services.", "x", nil, base.Add(-time.Hour))
	better := newPosting("Python Developer", "E", "Bangalore", "Python services.", "x", []string{"Python"}, base.Add(-time.Hour))

	m := newMatcher(t, DefaultConfig(), Deps{Embedder: embedder})
	report, err := m.Run(context.Background(), testResume(), []*jobs.Posting{older, sameB, newer, sameA, better})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	first, second := sameA.ID, sameB.ID
	if second < first {
		first, second = second, first
	}
	expect := []string{better.ID, newer.ID, older.ID, first, second}
	for i, id := range expect {
		if report.Results[i].PostingID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, report.Results[i].PostingID)
		}
	}
}

func TestRunTopKMinScoreAndLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TopK = 1
	m := newMatcher(t, cfg, Deps{Embedder: hashingEmbedder()})

	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var withSemantic int
	for _, result := range report.Results {
		if result.SemanticScore > 0 {
			withSemantic++
		}
	}
	if withSemantic > 1 {
		t.Fatalf("expected at most one semantic hit with top_k=1, got %d", withSemantic)
	}

	cfg = DefaultConfig()
	cfg.Limit = 2
	cfg.MinScore = 0.01
	m = newMatcher(t, cfg, Deps{Embedder: hashingEmbedder()})
	report, err = m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Results) != 2 || report.Results[0].Rank != 1 || report.Results[1].Rank != 2 {
		t.Fatalf("unexpected limited results %+v", report.Results)
	}
	for _, result := range report.Results {
		if result.CombinedScore < cfg.MinScore {
			t.Fatalf("result below min score: %+v", result)
		}
	}
}

func TestRunEmbeddingTimeoutDegrades(t *testing.T) {
	t.Parallel()

	base := hashingEmbedder()
	embedder := embedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(strings.ToLower(text), "devops engineer") {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return base.Embed(ctx, text)
	})

	cfg := DefaultConfig()
	cfg.EmbedTimeout = 50 * time.Millisecond
	m := newMatcher(t, cfg, Deps{Embedder: embedder})

	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.State != StateRanked || len(report.Results) != 4 {
		t.Fatalf("expected all postings ranked, got %s with %d", report.State, len(report.Results))
	}
	devops := testPostings()[4].ID
	for _, result := range report.Results {
		if result.PostingID == devops && result.SemanticAvailable {
			t.Fatalf("timed out posting must fall back to structured score")
		}
	}
}

func TestRunAppliesFilters(t *testing.T) {
	t.Parallel()

	filters := filtering.New(nil, filtering.NewExcludedCompanies([]string{"globex"}))
	m := newMatcher(t, DefaultConfig(), Deps{Embedder: hashingEmbedder(), Filters: filters})

	report, err := m.Run(context.Background(), testResume(), testPostings())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Filters) != 1 || report.Filters[0].Dropped != 1 {
		t.Fatalf("unexpected filter steps %+v", report.Filters)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "default", mutate: func(*Config) {}, ok: true},
		{name: "alpha above one", mutate: func(c *Config) { c.Alpha = 1.5 }},
		{name: "negative top k", mutate: func(c *Config) { c.TopK = -1 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }},
		{name: "min score above one", mutate: func(c *Config) { c.MinScore = 2 }},
		{name: "structured only", mutate: func(c *Config) { c.Alpha = 0 }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Fatalf("expected error without embedder")
	}
}
