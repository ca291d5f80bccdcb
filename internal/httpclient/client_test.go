package httpclient

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efferion/hlsgrab/internal/apperrors"
	"github.com/efferion/hlsgrab/internal/config"
)

func testConfig() config.Config {
	return config.New(
		config.WithRequestTimeout(2*time.Second),
		config.WithRetryAttempts(3),
		config.WithRetryBackoffBase(1*time.Millisecond),
	)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testConfig())
	body, meta, err := c.Fetch(t.Context(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 3, meta.Attempts)
	assert.Equal(t, http.StatusOK, meta.StatusCode)
}

func TestFetchExhaustsRetriesOnPersistentServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(testConfig()) // RetryAttempts: 3
	_, meta, err := c.Fetch(t.Context(), Request{URL: srv.URL})
	require.Error(t, err)

	var ne *apperrors.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, apperrors.NetErrServerError, ne.Code)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "1 initial attempt + 3 retries")
	assert.Equal(t, 4, meta.Attempts)
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, _, err := c.Fetch(t.Context(), Request{URL: srv.URL})
	require.Error(t, err)

	var ne *apperrors.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, apperrors.NetErrClientError, ne.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchDoesNotRetryTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, _, err := c.Fetch(t.Context(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchToPathWritesAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("segment-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "seg.ts")

	c := New(testConfig())
	_, err := c.FetchToPath(t.Context(), Request{URL: srv.URL}, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "segment-bytes", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file should remain")
}

func TestFetchToPathLeavesNoFileOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "seg.ts")

	cfg := testConfig()
	cfg.RetryAttempts = 0
	c := New(cfg)
	_, err := c.FetchToPath(t.Context(), Request{URL: srv.URL}, dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}

func TestBackoffDelayDoublesAndClamps(t *testing.T) {
	base := 100 * time.Millisecond
	d1 := backoffDelay(base, 1)
	d2 := backoffDelay(base, 2)
	d3 := backoffDelay(base, 10)

	assert.InDelta(t, float64(base), float64(d1), float64(base)*0.11)
	assert.InDelta(t, float64(base*2), float64(d2), float64(base*2)*0.11)
	assert.LessOrEqual(t, d3, maxBackoff+maxBackoff/10)
}
