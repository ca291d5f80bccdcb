package concat

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efferion/hlsgrab/internal/apperrors"
)

// fakeTool writes a shell script that stands in for ffmpeg: on success
// it writes a marker file at output, then exits with the given code
// after emitting stderr text.
func fakeTool(t *testing.T, output string, exitCode int, stderrText string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool script is POSIX shell only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-concat.sh")
	script := "#!/bin/sh\n"
	if stderrText != "" {
		script += "echo '" + stderrText + "' 1>&2\n"
	}
	if exitCode == 0 {
		script += "echo concatenated > '" + output + "'\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCombineSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000_a.ts"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001_b.ts"), []byte("b"), 0o644))

	output := filepath.Join(dir, "out.mp4")
	tool := fakeTool(t, output, 0, "")

	err := Combine(t.Context(), tool, dir, []string{"000000_a.ts", "000001_b.ts"}, output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "concatenated\n", string(data))
}

func TestConcatenatorCombineUsesBoundToolPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000_a.ts"), []byte("a"), 0o644))

	output := filepath.Join(dir, "out.mp4")
	tool := fakeTool(t, output, 0, "")

	c := NewConcatenator(tool)
	err := c.Combine(t.Context(), dir, []string{"000000_a.ts"}, output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "concatenated\n", string(data))
}

func TestCombineFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000_a.ts"), []byte("a"), 0o644))

	output := filepath.Join(dir, "out.mp4")
	tool := fakeTool(t, output, 1, "boom: bad stream")

	err := Combine(t.Context(), tool, dir, []string{"000000_a.ts"}, output)
	require.Error(t, err)

	var pe *apperrors.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ProcErrExternalToolFailed, pe.Code)
	assert.Contains(t, pe.StderrExcerpt, "boom: bad stream")
}

func TestCombineFailsOnEmptyOrder(t *testing.T) {
	dir := t.TempDir()
	err := Combine(t.Context(), "/usr/bin/true", dir, nil, filepath.Join(dir, "out.mp4"))
	require.Error(t, err)

	var pe *apperrors.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ProcErrNoSegmentsFound, pe.Code)
}
