package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u8")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n"), 0o644))

	fs := New()
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(data))
}

func TestFileSystemReadFileMissing(t *testing.T) {
	fs := New()
	_, err := fs.ReadFile(filepath.Join(t.TempDir(), "missing.m3u8"))
	assert.Error(t, err)
}
