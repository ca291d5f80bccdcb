package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizesRetryFields(t *testing.T) {
	cfg := New(WithRetryAttempts(-5), WithRetryBackoffBase(-time.Second))
	assert.Equal(t, 0, cfg.RetryAttempts)
	assert.Equal(t, time.Duration(0), cfg.RetryBackoffBase)
}

func TestNewResourceTimeoutDefaultsToRequestTimeout(t *testing.T) {
	cfg := New(WithRequestTimeout(45 * time.Second))
	assert.Equal(t, 45*time.Second, cfg.ResourceTimeout)
}

func TestNewMergesDefaultHeadersCallerWins(t *testing.T) {
	cfg := New(WithHeaders(map[string]string{"User-Agent": "custom/1.0", "X-Extra": "yes"}))
	assert.Equal(t, "custom/1.0", cfg.DefaultHeaders["User-Agent"])
	assert.Equal(t, "yes", cfg.DefaultHeaders["X-Extra"])
	assert.Equal(t, "*/*", cfg.DefaultHeaders["Accept"])
}

func TestNewDerivesMaxConcurrentTasksFromDownloads(t *testing.T) {
	cfg := New(WithMaxConcurrentDownloads(8))
	assert.Equal(t, 2, cfg.MaxConcurrentTasks)
}

func TestPerformanceDefaults(t *testing.T) {
	cfg := PerformanceDefaults()
	assert.Equal(t, 20, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 120*time.Second, cfg.ResourceTimeout)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(t, 400*time.Millisecond, cfg.RetryBackoffBase)
	assert.Equal(t, LogError, cfg.Logging.Level)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hlsgrab.yaml"
	err := os.WriteFile(path, []byte(`
max_concurrent_downloads: 5
retry_attempts: 4
retry_backoff_base_seconds: 0.25
log_level: debug
`), 0o644)
	require.NoError(t, err)

	cfg, v, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 5, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 4, cfg.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoffBase)
	assert.Equal(t, LogDebug, cfg.Logging.Level)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"none": LogNone, "ERROR": LogError, "info": LogInfo,
		"debug": LogDebug, "verbose": LogVerbose, "trace": LogTrace,
		"bogus": LogInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLogLevel(input), input)
	}
}
