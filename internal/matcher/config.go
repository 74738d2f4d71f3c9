package matcher

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAlpha        = 0.5
	DefaultConcurrency  = 4
	DefaultEmbedTimeout = 2 * time.Minute
)

var ErrInvalidConfig = errors.New("invalid matcher config")

// Config holds the ranking knobs of a run.
type Config struct {
	// Alpha is the weight of the semantic score in the combined score.
	Alpha float64 `mapstructure:"alpha" json:"alpha"`
	// TopK bounds the index query. Zero queries every posting.
	TopK int `mapstructure:"top_k" json:"top_k"`
	// EmbedTimeout bounds the whole posting embedding stage. Postings not embedded
	// in time fall back to their structured score.
	EmbedTimeout time.Duration `mapstructure:"embed_timeout" json:"embed_timeout"`
	Concurrency  int           `mapstructure:"concurrency" json:"concurrency"`
	// MinScore drops ranked results with a lower combined score.
	MinScore float64 `mapstructure:"min_score" json:"min_score"`
	// Limit keeps at most this many ranked results. Zero keeps all.
	Limit int `mapstructure:"limit" json:"limit"`
}

func DefaultConfig() Config {
	return Config{
		Alpha:        DefaultAlpha,
		EmbedTimeout: DefaultEmbedTimeout,
		Concurrency:  DefaultConcurrency,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Alpha < 0 || c.Alpha > 1:
		return fmt.Errorf("%w: alpha must be within [0,1], got %v", ErrInvalidConfig, c.Alpha)
	case c.TopK < 0:
		return fmt.Errorf("%w: top_k must not be negative, got %d", ErrInvalidConfig, c.TopK)
	case c.EmbedTimeout < 0:
		return fmt.Errorf("%w: embed_timeout must not be negative, got %s", ErrInvalidConfig, c.EmbedTimeout)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	case c.MinScore < 0 || c.MinScore > 1:
		return fmt.Errorf("%w: min_score must be within [0,1], got %v", ErrInvalidConfig, c.MinScore)
	case c.Limit < 0:
		return fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidConfig, c.Limit)
	}
	return nil
}
