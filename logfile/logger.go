// Package logfile provides a glog.Logger backed by slog that appends to
// date-stamped files, one per log stream (API calls, connection events).
package logfile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// slog has no TRACE or FATAL levels; map them just outside DEBUG and ERROR.
const (
	levelTrace = slog.LevelDebug - 4
	levelFatal = slog.LevelError + 4
)

// Logger writes structured records to a dated file such as
// logs/20260301_apilog.log. It implements glog.Logger.
type Logger struct {
	inner *slog.Logger
	level slog.Level
	exit  func(int)
}

type Option func(*options)

type options struct {
	dir   string
	clock func() time.Time
	out   io.Writer
	exit  func(int)
}

// WithDirectory sets where log files are created. Defaults to ./logs.
func WithDirectory(dir string) Option {
	return func(o *options) {
		if strings.TrimSpace(dir) != "" {
			o.dir = dir
		}
	}
}

// WithClock overrides the date used in the file name, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithWriter bypasses file creation and logs to the given writer.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithExit overrides the process-exit hook invoked by Fatal.
func WithExit(exit func(int)) Option {
	return func(o *options) {
		if exit != nil {
			o.exit = exit
		}
	}
}

// New opens (or creates) the dated log file for the named stream and
// returns a logger filtered to the given level. Level names follow the
// config file convention: TRACE, DEBUG, INFO, WARNING, ERROR.
func New(stream, level string, opts ...Option) (*Logger, error) {
	o := options{
		dir:   "logs",
		clock: func() time.Time { return time.Now().UTC() },
		exit:  os.Exit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	out := o.out
	if out == nil {
		if err := os.MkdirAll(o.dir, 0o755); err != nil {
			return nil, fmt.Errorf("logfile: create log directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", o.clock().Format("20060102"), strings.TrimSpace(stream))
		file, err := os.OpenFile(filepath.Join(o.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logfile: open log file: %w", err)
		}
		out = file
	}

	threshold := ParseLevel(level)
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: threshold})
	return &Logger{
		inner: slog.New(handler),
		level: threshold,
		exit:  o.exit,
	}, nil
}

// ParseLevel maps a config-file level name to a slog level, defaulting to
// INFO for unknown values.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return levelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "FATAL", "CRITICAL":
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(levelFatal, msg, args...)
	l.exit(1)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &Logger{inner: l.inner, level: l.level, exit: l.exit}
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.inner == nil {
		return
	}
	l.inner.Log(context.Background(), level, msg, args...)
}

var _ glog.Logger = (*Logger)(nil)
