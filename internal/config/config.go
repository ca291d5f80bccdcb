// Package config holds the value-typed, immutable configuration record
// that parameterizes the HTTP client, downloader, and orchestrator, and
// the viper-backed loader that builds one from a file plus overrides.
package config

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LogLevel is the six-level verbosity scale the orchestrator and HTTP
// client log against.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogError
	LogInfo
	LogDebug
	LogVerbose
	LogTrace
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return LogNone
	case "error":
		return LogError
	case "debug":
		return LogDebug
	case "verbose":
		return LogVerbose
	case "trace":
		return LogTrace
	default:
		return LogInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogError:
		return "error"
	case LogDebug:
		return "debug"
	case LogVerbose:
		return "verbose"
	case LogTrace:
		return "trace"
	default:
		return "info"
	}
}

// Logging groups the lumberjack-backed log sink's knobs, adapted from
// the teacher's LoggingConfig.
type Logging struct {
	Level      LogLevel
	Format     string // "json" or "text"
	File       string // empty means stderr
	Color      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config is the immutable value record described in spec §3/§4.1. It
// is safe to share by value across goroutines: nothing in it is a
// pointer to mutable shared state.
type Config struct {
	ToolConcatPath         string
	DefaultHeaders         map[string]string
	MaxConcurrentDownloads int
	RequestTimeout         time.Duration
	ResourceTimeout        time.Duration
	RetryAttempts          int
	RetryBackoffBase       time.Duration
	MaxConcurrentTasks     int
	MinFreeSpaceBytes      uint64 // 0 disables the pre-flight disk space check
	Logging                Logging
}

func defaultHeaderSet() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
		"Connection":      "keep-alive",
	}
}

// mergeHeaders merges caller headers over the default set, caller
// wins on key collision, case-insensitively.
func mergeHeaders(caller map[string]string) map[string]string {
	merged := defaultHeaderSet()
	lower := make(map[string]string, len(merged))
	for k := range merged {
		lower[strings.ToLower(k)] = k
	}
	for k, v := range caller {
		if existing, ok := lower[strings.ToLower(k)]; ok {
			delete(merged, existing)
		}
		merged[k] = v
		lower[strings.ToLower(k)] = k
	}
	return merged
}

// Option configures a Config built by New.
type Option func(*Config)

func WithToolConcatPath(path string) Option { return func(c *Config) { c.ToolConcatPath = path } }
func WithHeaders(h map[string]string) Option {
	return func(c *Config) { c.DefaultHeaders = h }
}
func WithMaxConcurrentDownloads(n int) Option {
	return func(c *Config) { c.MaxConcurrentDownloads = n }
}
func WithRequestTimeout(d time.Duration) Option { return func(c *Config) { c.RequestTimeout = d } }
func WithResourceTimeout(d time.Duration) Option {
	return func(c *Config) { c.ResourceTimeout = d }
}
func WithRetryAttempts(n int) Option    { return func(c *Config) { c.RetryAttempts = n } }
func WithRetryBackoffBase(d time.Duration) Option {
	return func(c *Config) { c.RetryBackoffBase = d }
}
func WithMaxConcurrentTasks(n int) Option { return func(c *Config) { c.MaxConcurrentTasks = n } }
func WithLogLevel(l LogLevel) Option      { return func(c *Config) { c.Logging.Level = l } }
func WithMinFreeSpaceBytes(n uint64) Option {
	return func(c *Config) { c.MinFreeSpaceBytes = n }
}

// New builds a Config, applying the constructor-time normalization
// spec §4.1 requires: non-negative retry fields, resource timeout
// defaulting to request timeout, and default-header merge.
func New(opts ...Option) Config {
	c := Config{
		DefaultHeaders:         nil,
		MaxConcurrentDownloads: 20,
		RequestTimeout:         60 * time.Second,
		RetryAttempts:          2,
		RetryBackoffBase:       400 * time.Millisecond,
		MaxConcurrentTasks:     0, // resolved below from MaxConcurrentDownloads/4
		Logging:                Logging{Level: LogError, Format: "text", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14},
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoffBase < 0 {
		c.RetryBackoffBase = 0
	}
	if c.ResourceTimeout <= 0 {
		c.ResourceTimeout = c.RequestTimeout
	}
	if c.MaxConcurrentDownloads <= 0 {
		c.MaxConcurrentDownloads = 1
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = maxInt(1, c.MaxConcurrentDownloads/4)
	}
	c.DefaultHeaders = mergeHeaders(c.DefaultHeaders)

	if c.ToolConcatPath == "" {
		if p, err := exec.LookPath("ffmpeg"); err == nil {
			c.ToolConcatPath = p
		}
	}

	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PerformanceDefaults returns the named factory from spec §4.1.
func PerformanceDefaults() Config {
	return New(
		WithMaxConcurrentDownloads(20),
		WithRequestTimeout(60*time.Second),
		WithResourceTimeout(120*time.Second),
		WithRetryAttempts(2),
		WithRetryBackoffBase(400*time.Millisecond),
		WithLogLevel(LogError),
	)
}

// Load builds a Config from an optional viper-managed YAML file,
// falling back to PerformanceDefaults for any unset field. Adapted
// from the teacher's cmd/greg/main.go config.Load flow.
func Load(path string) (Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := PerformanceDefaults()

	if v.IsSet("tool_concat_path") {
		cfg.ToolConcatPath = v.GetString("tool_concat_path")
	}
	if v.IsSet("max_concurrent_downloads") {
		cfg.MaxConcurrentDownloads = v.GetInt("max_concurrent_downloads")
	}
	if v.IsSet("max_concurrent_tasks") {
		cfg.MaxConcurrentTasks = v.GetInt("max_concurrent_tasks")
	}
	if v.IsSet("request_timeout_seconds") {
		cfg.RequestTimeout = time.Duration(v.GetFloat64("request_timeout_seconds") * float64(time.Second))
	}
	if v.IsSet("resource_timeout_seconds") {
		cfg.ResourceTimeout = time.Duration(v.GetFloat64("resource_timeout_seconds") * float64(time.Second))
	}
	if v.IsSet("retry_attempts") {
		cfg.RetryAttempts = v.GetInt("retry_attempts")
	}
	if v.IsSet("retry_backoff_base_seconds") {
		cfg.RetryBackoffBase = time.Duration(v.GetFloat64("retry_backoff_base_seconds") * float64(time.Second))
	}
	if v.IsSet("log_level") {
		cfg.Logging.Level = ParseLogLevel(v.GetString("log_level"))
	}
	if v.IsSet("log_format") {
		cfg.Logging.Format = v.GetString("log_format")
	}
	if v.IsSet("log_file") {
		cfg.Logging.File = v.GetString("log_file")
	}
	if v.IsSet("headers") {
		raw := v.GetStringMapString("headers")
		cfg.DefaultHeaders = mergeHeaders(raw)
	}
	if v.IsSet("min_free_space_mb") {
		cfg.MinFreeSpaceBytes = uint64(v.GetInt64("min_free_space_mb")) * 1024 * 1024
	}

	return New(optionsFromLoaded(cfg)...), v, nil
}

// optionsFromLoaded round-trips a fully-populated Config back through
// New so Load benefits from the same normalization path as New itself.
func optionsFromLoaded(c Config) []Option {
	return []Option{
		WithToolConcatPath(c.ToolConcatPath),
		WithHeaders(c.DefaultHeaders),
		WithMaxConcurrentDownloads(c.MaxConcurrentDownloads),
		WithRequestTimeout(c.RequestTimeout),
		WithResourceTimeout(c.ResourceTimeout),
		WithRetryAttempts(c.RetryAttempts),
		WithRetryBackoffBase(c.RetryBackoffBase),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
		WithMinFreeSpaceBytes(c.MinFreeSpaceBytes),
		func(cfg *Config) { cfg.Logging = c.Logging },
	}
}
