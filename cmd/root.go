package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobmatch/internal/dedup"
	"github.com/spigell/jobmatch/internal/embedding"
	"github.com/spigell/jobmatch/internal/index"
	"github.com/spigell/jobmatch/internal/matcher"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/secrets"
)

const (
	app       = "jobmatch"
	envPrefix = "JOBMATCH"

	cacheMemory = "memory"
	cacheRedis  = "redis"

	indexMemory = "memory"
	indexQdrant = "qdrant"
)

var errInvalidConfig = errors.New("invalid config")

type Config struct {
	Matcher   matcher.Config  `mapstructure:"matcher"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Index     IndexConfig     `mapstructure:"index"`
	Filters   FiltersConfig   `mapstructure:"filters"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Server    ServerConfig    `mapstructure:"server"`
}

type DedupConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type ScoringConfig struct {
	Weights   scoring.Weights `mapstructure:"weights"`
	Tolerance float64         `mapstructure:"tolerance"`
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	// URL is the ollama server or the openai compatible base url.
	URL        string         `mapstructure:"url"`
	APIKey     secrets.Source `mapstructure:"api-key"`
	Timeout    time.Duration  `mapstructure:"timeout"`
	MaxRetries int            `mapstructure:"max-retries"`
	RetryDelay time.Duration  `mapstructure:"retry-delay"`
	Rate       float64        `mapstructure:"rate"`
	Burst      int            `mapstructure:"burst"`
}

type CacheConfig struct {
	Type     string        `mapstructure:"type"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type IndexConfig struct {
	Type   string `mapstructure:"type"`
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type FiltersConfig struct {
	Companies   []string      `mapstructure:"companies"`
	ExcludeFile string        `mapstructure:"exclude-file"`
	MaxAge      time.Duration `mapstructure:"max-age"`
	RemoteOnly  bool          `mapstructure:"remote-only"`
}

type FeedConfig struct {
	URL       string              `mapstructure:"url"`
	Token     secrets.Source      `mapstructure:"token"`
	Query     map[string][]string `mapstructure:"query"`
	Rate      float64             `mapstructure:"rate"`
	Timeout   time.Duration       `mapstructure:"timeout"`
	UserAgent string              `mapstructure:"user-agent"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobmatch ranks scraped job postings against a resume",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := matcher.DefaultConfig()
	v.SetDefault("matcher.alpha", defaults.Alpha)
	v.SetDefault("matcher.embed_timeout", defaults.EmbedTimeout)
	v.SetDefault("matcher.concurrency", defaults.Concurrency)

	v.SetDefault("dedup.threshold", dedup.DefaultThreshold)

	weights := scoring.DefaultWeights()
	v.SetDefault("scoring.weights.skills", weights.Skills)
	v.SetDefault("scoring.weights.experience", weights.Experience)
	v.SetDefault("scoring.weights.location", weights.Location)
	v.SetDefault("scoring.tolerance", scoring.DefaultTolerance)

	v.SetDefault("embedding.provider", embedding.ProviderHashing)
	v.SetDefault("embedding.timeout", embedding.DefaultTimeout)
	v.SetDefault("embedding.max-retries", embedding.DefaultMaxRetries)
	v.SetDefault("embedding.retry-delay", embedding.DefaultRetryDelay)

	v.SetDefault("cache.type", cacheMemory)
	v.SetDefault("cache.prefix", embedding.DefaultRedisPrefix)

	v.SetDefault("index.type", indexMemory)
	v.SetDefault("index.prefix", index.DefaultCollectionPrefix)

	v.SetDefault("server.address", "127.0.0.1:8080")
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Defaults and environment are enough unless a file was asked for explicitly.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values no component constructor checks on its own.
func (c *Config) Validate() error {
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return err
	}

	switch {
	case c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1:
		return fmt.Errorf("%w: dedup.threshold must be within (0,1], got %v", errInvalidConfig, c.Dedup.Threshold)
	case c.Scoring.Tolerance < 0:
		return fmt.Errorf("%w: scoring.tolerance must not be negative, got %v", errInvalidConfig, c.Scoring.Tolerance)
	case c.Embedding.Dimension < 0:
		return fmt.Errorf("%w: embedding.dimension must not be negative, got %d", errInvalidConfig, c.Embedding.Dimension)
	case c.Embedding.Rate < 0:
		return fmt.Errorf("%w: embedding.rate must not be negative, got %v", errInvalidConfig, c.Embedding.Rate)
	case c.Filters.MaxAge < 0:
		return fmt.Errorf("%w: filters.max-age must not be negative, got %s", errInvalidConfig, c.Filters.MaxAge)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case embedding.ProviderGemini, embedding.ProviderOllama, embedding.ProviderOpenAI, embedding.ProviderHashing:
	default:
		return fmt.Errorf("%w: unsupported embedding provider %q", errInvalidConfig, c.Embedding.Provider)
	}

	switch strings.ToLower(c.Cache.Type) {
	case cacheMemory, "":
	case cacheRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("%w: cache.addr is required for the redis cache", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported cache type %q", errInvalidConfig, c.Cache.Type)
	}

	switch strings.ToLower(c.Index.Type) {
	case indexMemory, "":
	case indexQdrant:
		if c.Index.Addr == "" {
			return fmt.Errorf("%w: index.addr is required for the qdrant index", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported index type %q", errInvalidConfig, c.Index.Type)
	}

	return nil
}
