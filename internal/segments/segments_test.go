package segments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efferion/hlsgrab/internal/httpclient"
)

// fakeFetcher is a test double for Fetcher that writes deterministic
// bytes to disk and tracks the in-flight count observed at each call.
type fakeFetcher struct {
	mu          sync.Mutex
	inFlight    int32
	maxObserved int32
	failURL     string
}

func (f *fakeFetcher) FetchToPath(ctx context.Context, req httpclient.Request, destination string) (httpclient.Metadata, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if n > f.maxObserved {
		f.maxObserved = n
	}
	f.mu.Unlock()

	if req.URL == f.failURL {
		return httpclient.Metadata{}, fmt.Errorf("simulated permanent failure for %s", req.URL)
	}

	if err := os.WriteFile(destination, []byte(req.URL), 0o644); err != nil {
		return httpclient.Metadata{}, err
	}
	return httpclient.Metadata{StatusCode: 200}, nil
}

func TestDownloadAllRespectsConcurrencyCap(t *testing.T) {
	urls := make([]string, 100)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/seg%d.ts", i)
	}

	f := &fakeFetcher{}
	dir := t.TempDir()
	err := DownloadAll(t.Context(), f, urls, dir, Options{MaxConcurrent: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, f.maxObserved, int32(5))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestDownloadAllFailsBatchOnPermanentError(t *testing.T) {
	urls := []string{
		"https://cdn.example.com/seg0.ts",
		"https://cdn.example.com/seg1.ts",
		"https://cdn.example.com/seg2.ts",
	}
	f := &fakeFetcher{failURL: "https://cdn.example.com/seg1.ts"}
	dir := t.TempDir()

	err := DownloadAll(t.Context(), f, urls, dir, Options{MaxConcurrent: 3})
	require.Error(t, err)

	name, nameErr := FileName(1, urls[1])
	require.NoError(t, nameErr)
	_, statErr := os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(statErr), "the failed segment's file must not exist")
}

func TestFileNameNamespacesByIndexToAvoidBasenameCollisions(t *testing.T) {
	a, err := FileName(0, "https://cdn1.example.com/chunk.ts")
	require.NoError(t, err)
	b, err := FileName(1, "https://cdn2.example.com/chunk.ts")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "filenames should sort in segment order")
}

func TestDownloadAllReportsProgress(t *testing.T) {
	urls := []string{"https://cdn.example.com/a.ts", "https://cdn.example.com/b.ts"}
	f := &fakeFetcher{}
	dir := t.TempDir()

	var mu sync.Mutex
	seen := map[int]int64{}
	err := DownloadAll(t.Context(), f, urls, dir, Options{
		MaxConcurrent: 2,
		OnProgress: func(p Progress) {
			mu.Lock()
			seen[p.Index] = p.BytesWritten
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	for _, n := range seen {
		assert.Greater(t, n, int64(0))
	}
}
