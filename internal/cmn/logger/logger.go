// Package logger wraps log/slog with the options used by the exportsched
// commands and carries the active logger through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the structured logger used across the scheduler and the commands.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)

	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)

	With(attrs ...any) Logger
	WithGroup(name string) Logger

	// Write prints msg unstructured to stdout and to the log file, if any.
	Write(msg string)
}

var _ Logger = (*appLogger)(nil)

type appLogger struct {
	logger *slog.Logger
	file   *lockedWriter
	quiet  bool
}

// Config holds the options applied by NewLogger.
type Config struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
}

// Option configures NewLogger.
type Option func(*Config)

// WithDebug lowers the level to debug.
func WithDebug() Option {
	return func(o *Config) {
		o.debug = true
	}
}

// WithFormat selects "text" or "json" output.
func WithFormat(format string) Option {
	return func(o *Config) {
		o.format = strings.ToLower(format)
	}
}

// WithWriter mirrors all records to w.
func WithWriter(w io.Writer) Option {
	return func(o *Config) {
		o.writer = w
	}
}

// WithQuiet drops the stderr handler.
func WithQuiet() Option {
	return func(o *Config) {
		o.quiet = true
	}
}

var defaultLogger = NewLogger(WithFormat("text"))

// Default returns the process-wide fallback logger.
func Default() Logger {
	return defaultLogger
}

// NewLogger builds a Logger fanning out to stderr and the optional writer.
func NewLogger(opts ...Option) Logger {
	cfg := &Config{format: "text"}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.debug,
	}

	var (
		handlers []slog.Handler
		file     *lockedWriter
	)
	if !cfg.quiet {
		handlers = append(handlers, newHandler(os.Stderr, cfg.format, handlerOpts))
	}
	if cfg.writer != nil {
		file = &lockedWriter{w: cfg.writer}
		handlers = append(handlers, newHandler(file, cfg.format, handlerOpts))
	}

	return &appLogger{
		logger: slog.New(slogmulti.Fanout(handlers...)),
		file:   file,
		quiet:  cfg.quiet,
	}
}

// lockedWriter serialises writes so records from concurrent pollers don't interleave.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (a *appLogger) Debug(msg string, tags ...any) { a.logger.Debug(msg, tags...) }
func (a *appLogger) Info(msg string, tags ...any)  { a.logger.Info(msg, tags...) }
func (a *appLogger) Warn(msg string, tags ...any)  { a.logger.Warn(msg, tags...) }
func (a *appLogger) Error(msg string, tags ...any) { a.logger.Error(msg, tags...) }

func (a *appLogger) Debugf(format string, v ...any) { a.logf(slog.LevelDebug, format, v...) }
func (a *appLogger) Infof(format string, v ...any)  { a.logf(slog.LevelInfo, format, v...) }
func (a *appLogger) Warnf(format string, v ...any)  { a.logf(slog.LevelWarn, format, v...) }
func (a *appLogger) Errorf(format string, v ...any) { a.logf(slog.LevelError, format, v...) }

func (a *appLogger) logf(level slog.Level, format string, v ...any) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	a.logger.Log(ctx, level, fmt.Sprintf(format, v...))
}

func (a *appLogger) With(attrs ...any) Logger {
	return &appLogger{logger: a.logger.With(attrs...), file: a.file, quiet: a.quiet}
}

func (a *appLogger) WithGroup(name string) Logger {
	return &appLogger{logger: a.logger.WithGroup(name), file: a.file, quiet: a.quiet}
}

func (a *appLogger) Write(msg string) {
	if !a.quiet {
		_, _ = fmt.Fprintln(os.Stdout, msg)
	}
	if a.file != nil {
		_, _ = a.file.Write([]byte(msg + "\n"))
	}
}
