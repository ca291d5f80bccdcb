package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// slogLevel maps the six-level LogLevel scale onto slog's four
// levels; verbose and trace both map to slog.LevelDebug since slog has
// no finer granularity, and none disables the handler entirely.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogNone, LogError:
		return slog.LevelError
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// InitLogger builds a slog.Logger from Logging, rotating through
// lumberjack when a log file is configured.
func InitLogger(cfg *Logging) (*slog.Logger, error) {
	if cfg.Level == LogNone {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}

	level := cfg.Level.slogLevel()

	var writer io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		isConsole := cfg.File == ""
		if cfg.Color && isConsole {
			writer = newColorWriter(writer)
		}
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler), nil
}

// levelColors maps slog's level names to the ANSI codes InitLogger
// uses for console output; unrecognized levels pass through uncolored.
var levelColors = map[string]string{
	"DEBUG": "\033[90m", // gray
	"INFO":  "\033[32m", // green
	"WARN":  "\033[33m", // yellow
	"ERROR": "\033[31m", // red
}

const colorReset = "\033[0m"

// colorWriter wraps an io.Writer and colorizes each already-formatted
// text-handler line by the level= field it carries, rather than
// reimplementing slog.Handler.
type colorWriter struct {
	w io.Writer
}

func newColorWriter(w io.Writer) io.Writer {
	return &colorWriter{w: w}
}

func (c *colorWriter) Write(p []byte) (int, error) {
	line := string(p)
	for level, color := range levelColors {
		if strings.Contains(line, "level="+level) {
			trimmed := strings.TrimSuffix(line, "\n")
			line = color + trimmed + colorReset + "\n"
			break
		}
	}
	if _, err := io.WriteString(c.w, line); err != nil {
		return 0, err
	}
	return len(p), nil
}
