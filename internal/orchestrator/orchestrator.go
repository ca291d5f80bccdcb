package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/efferion/hlsgrab/internal/apperrors"
	"github.com/efferion/hlsgrab/internal/concat"
	"github.com/efferion/hlsgrab/internal/config"
	"github.com/efferion/hlsgrab/internal/diskspace"
	"github.com/efferion/hlsgrab/internal/httpclient"
	"github.com/efferion/hlsgrab/internal/playlist"
	"github.com/efferion/hlsgrab/internal/segments"
)

// Fetcher is the subset of *httpclient.Client the orchestrator and C5
// depend on; satisfied by the real client and substitutable in tests.
type Fetcher interface {
	Fetch(ctx context.Context, req httpclient.Request) ([]byte, httpclient.Metadata, error)
	FetchToPath(ctx context.Context, req httpclient.Request, destination string) (httpclient.Metadata, error)
}

// AggregateMetrics accumulates totals across every task the
// orchestrator has completed, per spec §4.7 step 9.
type AggregateMetrics struct {
	TotalDownloadTime   time.Duration
	TotalProcessingTime time.Duration
	CompletedTasks      int
}

// Orchestrator is C7: it owns the active-task table and the
// task-level admission semaphore, and drives each task's pipeline
// through the collaborators it was constructed with. Every
// collaborator is a field so tests can substitute fakes, per the
// "small capability set ... swapped via constructor injection" note in
// spec §9.
type Orchestrator struct {
	cfg    config.Config
	logger *slog.Logger

	fetcher Fetcher

	readLocal      func(path string) ([]byte, error)
	downloadAll    func(ctx context.Context, fetcher segments.Fetcher, urls []string, destDir string, opts segments.Options) error
	combine        func(ctx context.Context, toolPath, dir string, order []string, output string) error
	mkTempDir      func() (string, error)
	copyFile       func(src, dst string) error

	taskSem *semaphore.Weighted

	mu      sync.Mutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
	totals  AggregateMetrics
}

// Option configures an Orchestrator built by New.
type Option func(*Orchestrator)

// WithLogger overrides the default slog.Default() sink.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithFetcher substitutes the HTTP collaborator (test injection point).
func WithFetcher(f Fetcher) Option { return func(o *Orchestrator) { o.fetcher = f } }

// WithReadLocal substitutes the local-file-read collaborator.
func WithReadLocal(fn func(path string) ([]byte, error)) Option {
	return func(o *Orchestrator) { o.readLocal = fn }
}

// WithDownloadAll substitutes the C5 segment-download step.
func WithDownloadAll(fn func(ctx context.Context, fetcher segments.Fetcher, urls []string, destDir string, opts segments.Options) error) Option {
	return func(o *Orchestrator) { o.downloadAll = fn }
}

// WithCombine substitutes the C6 concatenation step.
func WithCombine(fn func(ctx context.Context, toolPath, dir string, order []string, output string) error) Option {
	return func(o *Orchestrator) { o.combine = fn }
}

// New builds an Orchestrator from cfg. The task-level admission bound
// defaults to cfg.MaxConcurrentTasks (itself derived from
// MaxConcurrentDownloads/4 by config.New, per spec §4.7).
func New(cfg config.Config, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		logger:      slog.Default(),
		fetcher:     fetcher,
		readLocal:   os.ReadFile,
		downloadAll: segments.DownloadAll,
		combine:     concat.Combine,
		mkTempDir:   func() (string, error) { return os.MkdirTemp("", "hlsgrab-task-"+uuid.NewString()) },
		copyFile:    copyFileContents,
		taskSem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		tasks:       make(map[string]*Task),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateTask runs the full pipeline from spec §4.7 synchronously: it
// returns only once the task reaches a terminal status. The task
// record remains queryable via TaskStatus after return.
func (o *Orchestrator) CreateTask(ctx context.Context, req Request) (err error) {
	if !o.taskSem.TryAcquire(1) {
		return apperrors.OperationCancelled("maximum concurrent tasks reached")
	}
	defer o.taskSem.Release(1)

	id := taskID(req.URL)
	task := &Task{
		ID:             id,
		URL:            req.URL,
		BaseURL:        req.BaseURL,
		SavedDirectory: req.SavedDirectory,
		FileName:       req.FileName,
		Source:         req.Source,
		StartTime:      time.Now(),
		status:         Status{Kind: StatusPending},
	}

	taskCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.tasks[id] = task
	o.cancels[id] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.cancels, id)
		o.mu.Unlock()
		cancel()

		if r := recover(); r != nil {
			o.setStatus(task, Status{Kind: StatusFailed, Err: apperrors.Wrap("task execution", fmt.Errorf("panic: %v", r))})
			panic(r)
		}
	}()

	runErr := o.runPipeline(taskCtx, task)
	if runErr != nil {
		if apperrors.IsCancellation(runErr) {
			o.setStatus(task, Status{Kind: StatusCancelled})
		} else {
			o.setStatus(task, Status{Kind: StatusFailed, Err: classifyPipelineError(runErr)})
		}
		return runErr
	}

	o.setStatus(task, Status{Kind: StatusCompleted})
	o.mu.Lock()
	o.totals.TotalDownloadTime += task.metrics.DownloadDuration
	o.totals.TotalProcessingTime += task.metrics.ProcessingDuration
	o.totals.CompletedTasks++
	o.mu.Unlock()
	return nil
}

// classifyPipelineError wraps any error that is not already one of the
// typed kinds from apperrors into ProcessingError{4999}, per spec §7;
// cancellation is handled separately and never reaches here.
func classifyPipelineError(err error) error {
	var ce *apperrors.ConfigurationError
	var ne *apperrors.NetworkError
	var pe *apperrors.ParsingError
	var fe *apperrors.FileSystemError
	var pre *apperrors.ProcessingError
	switch {
	case errors.As(err, &ce), errors.As(err, &ne), errors.As(err, &pe), errors.As(err, &fe), errors.As(err, &pre):
		return err
	default:
		return apperrors.Wrap("task execution", err)
	}
}

// runPipeline executes spec §4.7 steps 1-8; step 9 (status=Completed,
// totals aggregation) happens in the caller once runPipeline returns
// nil. The temp directory's scoped-release guard (step 1) runs via
// defer on every exit path, including the panic recovered in
// CreateTask, per spec's "guaranteed cleanup on every exit path"
// ownership rule.
func (o *Orchestrator) runPipeline(ctx context.Context, task *Task) error {
	tempDir, err := o.mkTempDir()
	if err != nil {
		return apperrors.FailedToCreateDir(tempDir, err)
	}
	defer os.RemoveAll(tempDir)

	if err := ctx.Err(); err != nil {
		return apperrors.OperationCancelled("setup")
	}

	o.setStatus(task, Status{Kind: StatusDownloading, Progress: 0.2})

	playlistText, playlistURL, err := o.fetchPlaylistText(ctx, task)
	if err != nil {
		return err
	}

	baseURL := task.BaseURL
	if baseURL == "" {
		baseURL = directoryComponent(playlistURL)
	}

	result, err := playlist.Parse(playlistText, baseURL)
	if err != nil {
		return err
	}

	switch {
	case result.Cancelled:
		return apperrors.OperationCancelled("parsing")
	case result.Master != nil:
		return &apperrors.ProcessingError{Code: apperrors.ProcErrMasterPlaylistsNotSupported, Message: "master playlists are not supported by the downloader", Operation: "parse"}
	case result.Media == nil:
		return apperrors.Wrap("parse", errors.New("parser produced neither master nor media playlist"))
	}

	media := result.Media

	segmentURLs, fileNames, err := resolveSegments(media, baseURL)
	if err != nil {
		return err
	}
	o.updateMetrics(task, func(m *Metrics) { m.SegmentCount = len(segmentURLs) })

	if err := ctx.Err(); err != nil {
		return apperrors.OperationCancelled("resolve segments")
	}

	if available, enough, err := diskspace.CheckEnough(tempDir, o.cfg.MinFreeSpaceBytes); err == nil && !enough {
		return apperrors.InsufficientSpace(tempDir, o.cfg.MinFreeSpaceBytes, available)
	}

	o.setStatus(task, Status{Kind: StatusDownloading, Progress: 0.3})
	downloadStart := time.Now()

	var progressMu sync.Mutex
	completed := 0
	err = o.downloadAll(ctx, o.fetcher, segmentURLs, tempDir, segments.Options{
		MaxConcurrent: o.cfg.MaxConcurrentDownloads,
		Headers:       o.cfg.DefaultHeaders,
		OnProgress: func(segments.Progress) {
			progressMu.Lock()
			completed++
			frac := 0.3 + 0.6*float64(completed)/float64(len(segmentURLs))
			progressMu.Unlock()
			o.setStatus(task, Status{Kind: StatusDownloading, Progress: frac})
		},
	})
	downloadElapsed := time.Since(downloadStart)
	o.updateMetrics(task, func(m *Metrics) { m.DownloadDuration = downloadElapsed })
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.OperationCancelled("download")
		}
		return err
	}
	totalBytes := sumDirSize(tempDir)
	o.updateMetrics(task, func(m *Metrics) { m.TotalBytes = totalBytes })

	o.setStatus(task, Status{Kind: StatusProcessing})
	processStart := time.Now()

	concatOutput := filepath.Join(tempDir, deriveOutputName(playlistURL, ""))
	if err := o.combine(ctx, o.cfg.ToolConcatPath, tempDir, fileNames, concatOutput); err != nil {
		if ctx.Err() != nil {
			return apperrors.OperationCancelled("concat")
		}
		return err
	}
	processElapsed := time.Since(processStart)
	o.updateMetrics(task, func(m *Metrics) { m.ProcessingDuration = processElapsed })

	finalName := deriveOutputName(playlistURL, task.FileName)
	finalPath := resolveCollision(filepath.Join(task.SavedDirectory, finalName))
	if err := os.MkdirAll(task.SavedDirectory, 0o750); err != nil {
		return apperrors.FailedToCreateDir(task.SavedDirectory, err)
	}
	if err := o.copyFile(concatOutput, finalPath); err != nil {
		return apperrors.FailedToWrite(finalPath, err)
	}

	return nil
}

// fetchPlaylistText implements step 2: web sources go through the HTTP
// fetcher (inheriting C3's retries), local sources through the
// filesystem collaborator. Returns the text and the URL used to derive
// the base URL / output name from.
func (o *Orchestrator) fetchPlaylistText(ctx context.Context, task *Task) (string, string, error) {
	switch task.Source {
	case SourceLocal:
		data, err := o.readLocal(task.URL)
		if err != nil {
			return "", "", apperrors.FailedToRead(task.URL, err)
		}
		return string(data), task.URL, nil
	default:
		body, _, err := o.fetcher.Fetch(ctx, httpclient.Request{URL: task.URL, Headers: o.cfg.DefaultHeaders})
		if err != nil {
			return "", "", err
		}
		return string(body), task.URL, nil
	}
}

// resolveSegments implements step 5: resolve each segment URI against
// baseURL into an absolute URL, and derive each segment's on-disk
// filename via the same convention segments.FileName uses, so the
// concatenator's ordered input matches what C5 actually wrote.
func resolveSegments(media *playlist.Media, baseURL string) ([]string, []string, error) {
	if len(media.Segments) == 0 {
		return nil, nil, &apperrors.ProcessingError{Code: apperrors.ProcErrNoValidSegments, Message: "media playlist has no segments", Operation: "resolve segments"}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, &apperrors.NetworkError{Code: apperrors.NetErrInvalidURL, URL: baseURL, Underlying: err}
	}

	urls := make([]string, 0, len(media.Segments))
	names := make([]string, 0, len(media.Segments))
	for i, seg := range media.Segments {
		ref, err := url.Parse(seg.URI)
		if err != nil {
			return nil, nil, &apperrors.NetworkError{Code: apperrors.NetErrInvalidURL, URL: seg.URI, Underlying: err}
		}
		resolved := base.ResolveReference(ref).String()
		urls = append(urls, resolved)

		name, err := segments.FileName(i, resolved)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
	}

	if len(urls) == 0 {
		return nil, nil, &apperrors.ProcessingError{Code: apperrors.ProcErrNoValidSegments, Message: "no resolvable segment URLs", Operation: "resolve segments"}
	}
	return urls, names, nil
}

// directoryComponent returns the directory component of a playlist
// URL, used as the default base URL when the request does not supply
// one, per spec §4.4.2's closing note.
func directoryComponent(playlistURL string) string {
	u, err := url.Parse(playlistURL)
	if err != nil {
		return playlistURL
	}
	u.Path = path.Dir(u.Path) + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// deriveOutputName implements the naming rule from spec §4.7
// step 7/§6: custom (ensuring .mp4) if provided, else the playlist's
// last path component with .m3u8 replaced by .mp4.
func deriveOutputName(playlistURL, custom string) string {
	if custom != "" {
		if !strings.HasSuffix(strings.ToLower(custom), ".mp4") {
			custom += ".mp4"
		}
		return custom
	}
	base := path.Base(playlistURL)
	if u, err := url.Parse(playlistURL); err == nil && u.Path != "" {
		base = path.Base(u.Path)
	}
	if ext := path.Ext(base); strings.EqualFold(ext, ".m3u8") {
		base = strings.TrimSuffix(base, ext)
	}
	if !strings.HasSuffix(strings.ToLower(base), ".mp4") {
		base += ".mp4"
	}
	return base
}

// resolveCollision implements the single-round collision rule from
// spec §4.7 step 8 / §9 note 2: if path already exists, append "_1"
// before the extension; a further collision on that name is not
// resolved, a known limitation carried over from spec.
func resolveCollision(p string) string {
	if _, err := os.Stat(p); err != nil {
		return p
	}
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	return stem + "_1" + ext
}

func sumDirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".publish-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (o *Orchestrator) setStatus(task *Task, s Status) {
	o.mu.Lock()
	task.status = s
	o.mu.Unlock()
}

// updateMetrics applies fn to task's metrics under the orchestrator's
// serialization boundary, per spec §5's "metrics updates ... serialized
// by the task's own actor-like boundary".
func (o *Orchestrator) updateMetrics(task *Task, fn func(*Metrics)) {
	o.mu.Lock()
	fn(&task.metrics)
	o.mu.Unlock()
}

// TaskStatus returns the current status of task id, if known.
func (o *Orchestrator) TaskStatus(id string) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok {
		return Status{}, false
	}
	return t.status, true
}

// TaskMetrics returns the current metrics snapshot of task id, if known.
func (o *Orchestrator) TaskMetrics(id string) (Metrics, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok {
		return Metrics{}, false
	}
	return t.metrics, true
}

// CancelTask marks id cancelled and cancels its pipeline's context, if
// the task is still active. Its temp directory is still removed by the
// scoped guard in runPipeline.
func (o *Orchestrator) CancelTask(id string) {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	task := o.tasks[id]
	o.mu.Unlock()

	if ok {
		cancel()
	}
	if task != nil {
		o.setStatus(task, Status{Kind: StatusCancelled})
	}
}

// PerformanceMetrics returns the orchestrator-wide aggregate totals.
func (o *Orchestrator) PerformanceMetrics() AggregateMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totals
}
