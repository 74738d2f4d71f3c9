package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/dedup"
	"github.com/spigell/jobmatch/internal/embedding"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/index"
	"github.com/spigell/jobmatch/internal/matcher"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/secrets"
)

// components are the long-lived collaborators shared by match and serve.
type components struct {
	matcher *matcher.Matcher
	filters *filtering.Filtering
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildComponents(ctx context.Context, config *Config, log *zap.Logger) (*components, error) {
	c := &components{}

	backend, err := newBackend(ctx, config.Embedding)
	if err != nil {
		return nil, fmt.Errorf("building embedding backend: %w", err)
	}

	cache, closeCache, err := newCache(ctx, config.Cache)
	if err != nil {
		return nil, fmt.Errorf("building embedding cache: %w", err)
	}
	c.closers = append(c.closers, closeCache)

	indexes, closeIndex, err := newIndexFactory(config.Index, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("building vector index: %w", err)
	}
	c.closers = append(c.closers, closeIndex)

	scorer, err := scoring.New(config.Scoring.Weights, config.Scoring.Tolerance)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.filters = newFilters(config.Filters, log)
	if err := c.filters.Validate(); err != nil {
		c.Close()
		return nil, err
	}

	service := embedding.NewService(backend, embedding.Options{
		Timeout:       config.Embedding.Timeout,
		MaxRetries:    config.Embedding.MaxRetries,
		RetryDelay:    config.Embedding.RetryDelay,
		RatePerSecond: config.Embedding.Rate,
		Burst:         config.Embedding.Burst,
		Cache:         cache,
		Logger:        log,
	})

	c.matcher, err = matcher.New(config.Matcher, matcher.Deps{
		Embedder:     service,
		Indexes:      indexes,
		Deduplicator: dedup.New(config.Dedup.Threshold, log),
		Scorer:       scorer,
		Filters:      c.filters,
		Logger:       log,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	log.Info("components ready",
		zap.String("embedding_provider", service.Provider()),
		zap.String("embedding_model", service.Model()),
		zap.String("cache", cacheType(config.Cache)),
		zap.String("index", indexType(config.Index)),
	)

	return c, nil
}

func newBackend(ctx context.Context, cfg EmbeddingConfig) (embedding.Backend, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case embedding.ProviderHashing, "":
		return embedding.NewHashing(cfg.Dimension), nil
	case embedding.ProviderOllama:
		return embedding.NewOllama(cfg.URL, cfg.Model, &http.Client{Timeout: cfg.Timeout})
	case embedding.ProviderGemini:
		apiKey, err := loadAPIKey(cfg.APIKey, "gemini api key", "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return embedding.NewGemini(ctx, apiKey, cfg.Model, cfg.Dimension)
	case embedding.ProviderOpenAI:
		apiKey, err := loadAPIKey(cfg.APIKey, "openai api key", "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return embedding.NewOpenAI(apiKey, cfg.URL, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func loadAPIKey(src secrets.Source, name, env string) (string, error) {
	src.Name = name
	if src.Env == "" {
		src.Env = env
	}

	key, err := secrets.Load(src)
	if err != nil {
		return "", fmt.Errorf("%w (set embedding.api-key.file, embedding.api-key.value or %s)", err, src.Env)
	}
	return key, nil
}

// newCache returns the cache shared across runs. The in-memory type has no
// shared cache: the embedding service then gives every run its own.
func newCache(ctx context.Context, cfg CacheConfig) (embedding.Cache, func() error, error) {
	if cacheType(cfg) != cacheRedis {
		return nil, func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return embedding.NewRedisCache(client, cfg.Prefix, cfg.TTL), client.Close, nil
}

func newIndexFactory(cfg IndexConfig, log *zap.Logger) (index.Factory, func() error, error) {
	if indexType(cfg) != indexQdrant {
		return index.MemoryFactory(), func() error { return nil }, nil
	}

	conn, err := index.Dial(cfg.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing qdrant at %s: %w", cfg.Addr, err)
	}

	return index.QdrantFactory(conn, cfg.Prefix, log), conn.Close, nil
}

func newFilters(cfg FiltersConfig, log *zap.Logger) *filtering.Filtering {
	f := filtering.New(log,
		filtering.NewExcludedCompanies(cfg.Companies),
		filtering.NewExcludeFile(cfg.ExcludeFile),
		filtering.NewMaxAge(cfg.MaxAge, time.Now),
		filtering.NewRemoteOnly(),
	)

	if !cfg.RemoteOnly {
		f.DisableByName("remote_only", "disabled in config")
	}
	if cfg.MaxAge == 0 {
		f.DisableByName("max_age", "no maximum age configured")
	}

	return f
}

func cacheType(cfg CacheConfig) string {
	if t := strings.ToLower(cfg.Type); t != "" {
		return t
	}
	return cacheMemory
}

func indexType(cfg IndexConfig) string {
	if t := strings.ToLower(cfg.Type); t != "" {
		return t
	}
	return indexMemory
}
