// Package config loads magvec store settings from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/magvec"
	"github.com/hupe1980/magvec/resource"
)

// Config is the top-level store configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Query     QueryConfig     `mapstructure:"query"`
	OOV       OOVConfig       `mapstructure:"oov"`
	Matrix    MatrixConfig    `mapstructure:"matrix"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig controls caching and background loading.
type StoreConfig struct {
	LazyLoading      int    `mapstructure:"lazy_loading"`
	Blocking         bool   `mapstructure:"blocking"`
	Eager            bool   `mapstructure:"eager"`
	Normalized       bool   `mapstructure:"normalized"`
	CaseInsensitive  bool   `mapstructure:"case_insensitive"`
	Placeholders     int    `mapstructure:"placeholders"`
	TempDir          string `mapstructure:"temp_dir"`
	PostingCacheSize int    `mapstructure:"posting_cache_size"`
}

// QueryConfig controls the shape of batch query output.
type QueryConfig struct {
	PadToLength  int  `mapstructure:"pad_to_length"`
	PadLeft      bool `mapstructure:"pad_left"`
	TruncateLeft bool `mapstructure:"truncate_left"`
	BatchSize    int  `mapstructure:"batch_size"`
}

// OOVConfig controls vectors synthesized for missing keys.
type OOVConfig struct {
	Ngram     bool   `mapstructure:"ngram"`
	Language  string `mapstructure:"language"`
	Namespace string `mapstructure:"namespace"`
}

// MatrixConfig controls waiting on a search matrix built elsewhere.
type MatrixConfig struct {
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ResourcesConfig bounds background work. Zero values mean unlimited.
type ResourcesConfig struct {
	MemoryLimitBytes   int64 `mapstructure:"memory_limit_bytes"`
	MaxBackgroundJobs  int64 `mapstructure:"max_background_jobs"`
	IOLimitBytesPerSec int64 `mapstructure:"io_limit_bytes_per_sec"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix MAGVEC_).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.lazy_loading", 0)
	v.SetDefault("store.blocking", false)
	v.SetDefault("store.eager", true)
	v.SetDefault("store.normalized", true)
	v.SetDefault("store.case_insensitive", false)
	v.SetDefault("store.placeholders", 0)
	v.SetDefault("store.temp_dir", "")
	v.SetDefault("store.posting_cache_size", magvec.DefaultPostingCacheSize)
	v.SetDefault("query.pad_to_length", 0)
	v.SetDefault("query.pad_left", false)
	v.SetDefault("query.truncate_left", false)
	v.SetDefault("query.batch_size", magvec.DefaultBatchSize)
	v.SetDefault("oov.ngram", true)
	v.SetDefault("oov.language", magvec.DefaultLanguage)
	v.SetDefault("oov.namespace", "")
	v.SetDefault("matrix.wait_timeout", time.Duration(0))
	v.SetDefault("matrix.poll_interval", time.Duration(0))
	v.SetDefault("resources.memory_limit_bytes", 0)
	v.SetDefault("resources.max_background_jobs", 0)
	v.SetDefault("resources.io_limit_bytes_per_sec", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("MAGVEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors and reports all of
// them.
func (c *Config) Validate() []error {
	var errs []error

	if c.Store.LazyLoading < -1 {
		errs = append(errs, fmt.Errorf("config: store.lazy_loading must be >= -1, got %d", c.Store.LazyLoading))
	}
	if c.Store.Placeholders < 0 {
		errs = append(errs, fmt.Errorf("config: store.placeholders must be >= 0, got %d", c.Store.Placeholders))
	}
	if c.Store.PostingCacheSize < 0 {
		errs = append(errs, fmt.Errorf("config: store.posting_cache_size must be >= 0, got %d", c.Store.PostingCacheSize))
	}
	if c.Query.PadToLength < 0 {
		errs = append(errs, fmt.Errorf("config: query.pad_to_length must be >= 0, got %d", c.Query.PadToLength))
	}
	if c.Query.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("config: query.batch_size must be positive, got %d", c.Query.BatchSize))
	}
	if c.Matrix.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: matrix.wait_timeout must not be negative, got %s", c.Matrix.WaitTimeout))
	}
	if c.Matrix.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("config: matrix.poll_interval must not be negative, got %s", c.Matrix.PollInterval))
	}
	if c.Resources.MemoryLimitBytes < 0 || c.Resources.MaxBackgroundJobs < 0 || c.Resources.IOLimitBytesPerSec < 0 {
		errs = append(errs, errors.New("config: resources limits must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() *magvec.Logger {
	lvl, err := c.Log.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if c.Log.Format == "json" {
		return magvec.NewJSONLogger(lvl)
	}
	return magvec.NewTextLogger(lvl)
}

// Options converts the configuration into store options. A resource
// controller is only attached when at least one limit is set.
func (c *Config) Options() []magvec.Option {
	opts := []magvec.Option{
		magvec.WithLazyLoading(c.Store.LazyLoading),
		magvec.WithBlocking(c.Store.Blocking),
		magvec.WithEager(c.Store.Eager),
		magvec.WithNormalized(c.Store.Normalized),
		magvec.WithCaseInsensitive(c.Store.CaseInsensitive),
		magvec.WithPlaceholders(c.Store.Placeholders),
		magvec.WithTempDir(c.Store.TempDir),
		magvec.WithPostingCacheSize(c.Store.PostingCacheSize),
		magvec.WithPadToLength(c.Query.PadToLength),
		magvec.WithPadLeft(c.Query.PadLeft),
		magvec.WithTruncateLeft(c.Query.TruncateLeft),
		magvec.WithBatchSize(c.Query.BatchSize),
		magvec.WithNgramOOV(c.OOV.Ngram),
		magvec.WithLanguage(c.OOV.Language),
		magvec.WithNamespace(c.OOV.Namespace),
		magvec.WithMatrixWaitTimeout(c.Matrix.WaitTimeout),
		magvec.WithLogger(c.Logger()),
	}

	if c.Matrix.PollInterval > 0 {
		opts = append(opts, magvec.WithMatrixPollInterval(c.Matrix.PollInterval))
	}

	r := c.Resources
	if r.MemoryLimitBytes > 0 || r.MaxBackgroundJobs > 0 || r.IOLimitBytesPerSec > 0 {
		opts = append(opts, magvec.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   r.MemoryLimitBytes,
			MaxBackgroundJobs:  r.MaxBackgroundJobs,
			IOLimitBytesPerSec: r.IOLimitBytesPerSec,
		})))
	}

	return opts
}
