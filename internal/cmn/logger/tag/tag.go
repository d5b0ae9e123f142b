// Package tag provides the attribute constructors used for structured logging.
//
// Keys are kebab-case. Use these instead of raw strings so the same field is
// spelled the same way everywhere.
package tag

import (
	"log/slog"
	"time"
)

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Error creates a tag for error values.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Job creates a tag for a scheduler job ID.
func Job(id string) slog.Attr {
	return slog.String("job", id)
}

// Jobs creates a tag for a list of job IDs.
func Jobs(ids []string) slog.Attr {
	return slog.Any("jobs", ids)
}

// State creates a tag for a remote job state.
func State(s string) slog.Attr {
	return slog.String("state", s)
}

// Operation creates a tag for a remote operation name.
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// Kind creates a tag for a task kind.
func Kind(kind string) slog.Attr {
	return slog.String("kind", kind)
}

// Dependencies creates a tag for a job's dependency IDs.
func Dependencies(ids []string) slog.Attr {
	return slog.Any("deps", ids)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Interval creates a tag for a wait interval.
func Interval(d time.Duration) slog.Attr {
	return slog.Duration("interval", d)
}

// Elapsed creates a tag for elapsed time.
func Elapsed(d time.Duration) slog.Attr {
	return slog.Duration("elapsed", d)
}

// Count creates a tag for a generic count.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

func Running(n int) slog.Attr {
	return slog.Int("running", n)
}

func Pending(n int) slog.Attr {
	return slog.Int("pending", n)
}

func Finished(n int) slog.Attr {
	return slog.Int("finished", n)
}

// Limit creates a tag for a concurrency limit.
func Limit(n int) slog.Attr {
	return slog.Int("limit", n)
}

// URL creates a tag for a URL or URI.
func URL(u string) slog.Attr {
	return slog.String("url", u)
}

// Status creates a tag for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int("status", code)
}

// File creates a tag for a file path.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// RunKey creates a tag for a checkpoint run key.
func RunKey(key string) slog.Attr {
	return slog.String("run-key", key)
}

// Store creates a tag for a checkpoint backend name.
func Store(name string) slog.Attr {
	return slog.String("store", name)
}

// Addr creates a tag for a listen address.
func Addr(addr string) slog.Attr {
	return slog.String("addr", addr)
}
