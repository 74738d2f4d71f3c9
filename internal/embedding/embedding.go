package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/utils"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

var (
	// ErrUnavailable means the backend failed or timed out.
	ErrUnavailable = errors.New("embedding backend unavailable")
	// ErrEmptyEmbedding means the backend answered with no vector.
	ErrEmptyEmbedding = errors.New("embedding backend returned an empty vector")
	// ErrEmptyText means there was nothing left to embed after normalization.
	ErrEmptyText = errors.New("nothing to embed")
)

var waitFor = utils.WaitFor

// Backend turns text into a vector. Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder is what the matcher needs from an embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RunScoped is implemented by embedders that keep per-run state. The matcher
// calls ForRun once at the start of every run and embeds through the result.
type RunScoped interface {
	ForRun() Embedder
}

type Options struct {
	// Timeout bounds every backend call.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// RatePerSecond paces backend calls. Zero disables pacing.
	RatePerSecond float64
	Burst         int
	// Cache is shared by every run. When nil, NewCache is used instead.
	Cache Cache
	// NewCache builds the cache for a single run. It defaults to
	// NewMemoryCache, so in-process entries never outlive the run.
	NewCache func() Cache
	Logger   *zap.Logger
}

// Service normalizes text, consults the cache and calls the backend with
// per-call timeouts, pacing and bounded retries.
type Service struct {
	backend    Backend
	cache      Cache
	newCache   func() Cache
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewService(backend Backend, opts Options) *Service {
	s := &Service{
		backend:    backend,
		cache:      opts.Cache,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logger.WithCommonFields(opts.Logger, backend.Name(), backend.Model()),
	}

	if s.cache == nil {
		s.newCache = opts.NewCache
		if s.newCache == nil {
			s.newCache = func() Cache { return NewMemoryCache() }
		}
		s.cache = s.newCache()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return s
}

func (s *Service) Model() string { return s.backend.Model() }

// ForRun returns a service that shares the backend and the pacing with s and
// owns a fresh cache. A service built with a shared Cache returns itself.
func (s *Service) ForRun() Embedder {
	if s.newCache == nil {
		return s
	}
	run := *s
	run.cache = s.newCache()
	return &run
}

func (s *Service) Provider() string { return s.backend.Name() }

// Embed returns the vector for text. The caller owns the returned slice.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyText
	}

	key := CacheKey(s.backend.Model(), normalized)
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("embedding cache lookup failed", zap.Error(err))
	}
	if ok {
		s.logger.Debug("embedding cache hit", zap.String("key", key))
		return cached, nil
	}

	vector, err := s.call(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if err := s.cache.PutIfAbsent(ctx, key, vector); err != nil {
		s.logger.Warn("embedding cache store failed", zap.Error(err))
	}

	return vector, nil
}

func (s *Service) call(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		vector, err := s.backend.Embed(callCtx, text)
		cancel()

		if err == nil {
			if len(vector) == 0 {
				return nil, ErrEmptyEmbedding
			}
			return vector, nil
		}

		if errors.Is(err, ErrEmptyEmbedding) {
			return nil, err
		}

		if attempt >= s.maxRetries || ctx.Err() != nil || !Retryable(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		delay := utils.Backoff(s.retryDelay, attempt, maxRetryDelay)
		s.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := waitFor(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
}
