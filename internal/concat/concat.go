// Package concat implements the video concatenator (C6): it invokes an
// external process (ffmpeg by convention, but opaque per spec §1) to
// merge ordered segment files into a single output file. Grounded on
// the external-process invocation shape in the teacher's
// internal/downloader/worker.go ffmpeg step (stdout/stderr on separate
// pipes, cmd.Wait, non-zero exit mapped to a typed error) and the tool
// discovery in internal/downloader/tools/detector.go, generalized from
// the teacher's hardcoded yt-dlp/ffmpeg pair to Config.ToolConcatPath's
// single opaque tool.
package concat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/efferion/hlsgrab/internal/apperrors"
)

// maxStderrExcerpt bounds how much of a failed tool's stderr is
// retained in the returned error, matching spec §7's "stderr excerpt".
const maxStderrExcerpt = 4096

// Concatenator binds a fixed tool path to Combine so it can be held as
// a long-lived collaborator (the registry's "concatenator wrapper",
// per spec §3) instead of threading the configured tool path through
// every call site.
type Concatenator struct {
	ToolPath string
}

// NewConcatenator returns a Concatenator bound to toolPath.
func NewConcatenator(toolPath string) *Concatenator {
	return &Concatenator{ToolPath: toolPath}
}

// Combine concatenates order (relative to dir) into output using the
// tool path the Concatenator was constructed with.
func (c *Concatenator) Combine(ctx context.Context, dir string, order []string, output string) error {
	return Combine(ctx, c.ToolPath, dir, order, output)
}

// Combine concatenates the files named in order (relative to dir) into
// output, via the ffmpeg concat-demuxer convention: a generated list
// file of `file '<path>'` lines passed as -f concat -safe 0 -i <list>.
// order must be non-empty; an empty directory-derived list is
// ProcessingError{NoSegmentsFound} per spec §4.6.
func Combine(ctx context.Context, toolPath, dir string, order []string, output string) error {
	if len(order) == 0 {
		return &apperrors.ProcessingError{Code: apperrors.ProcErrNoSegmentsFound, Message: "no segment files to concatenate", Operation: "concat"}
	}
	if toolPath == "" {
		return &apperrors.ProcessingError{Code: apperrors.ProcErrGenericWrapped, Message: "no concatenation tool configured", Operation: "concat"}
	}

	listPath := filepath.Join(dir, ".concat-list.txt")
	if err := writeConcatList(listPath, dir, order); err != nil {
		return apperrors.FailedToWrite(listPath, err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		output,
	}

	cmd := exec.CommandContext(ctx, toolPath, args...)
	cmd.Stdin = nil // closed immediately; never blocks on interactive input

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.Wrap("concat", fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperrors.Wrap("concat", fmt.Errorf("failed to create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return apperrors.Wrap("concat", fmt.Errorf("failed to start %s: %w", toolPath, err))
	}

	go drain(stdout)
	stderrExcerpt := captureExcerpt(stderr)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return apperrors.OperationCancelled("concat")
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		}
		return &apperrors.ProcessingError{
			Code:          apperrors.ProcErrExternalToolFailed,
			Operation:     "concat",
			ExitCode:      exitCode,
			StderrExcerpt: stderrExcerpt,
			Underlying:    err,
		}
	}

	return nil
}

// writeConcatList writes the ffmpeg concat-demuxer list file naming
// each file in order, relative to dir.
func writeConcatList(listPath, dir string, order []string) error {
	f, err := os.Create(listPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, name := range order {
		full := filepath.Join(dir, name)
		// single quotes in ffmpeg's list format are escaped as '\''
		escaped := strings.ReplaceAll(full, "'", `'\''`)
		if _, err := fmt.Fprintf(w, "file '%s'\n", escaped); err != nil {
			return err
		}
	}
	return w.Flush()
}

func drain(r io.Reader) {
	io.Copy(io.Discard, r)
}

func captureExcerpt(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	var b strings.Builder
	for scanner.Scan() {
		if b.Len() >= maxStderrExcerpt {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	out := b.String()
	if len(out) > maxStderrExcerpt {
		out = out[:maxStderrExcerpt]
	}
	return out
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
