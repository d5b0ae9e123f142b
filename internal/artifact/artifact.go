// Package artifact checks whether task outputs already exist in object
// storage so finished work can be skipped.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/manifest"
	"github.com/geetools/exportsched/internal/scheduler"
)

// ErrUnsupportedURI is returned for outputs that are not gs:// or s3:// URIs.
var ErrUnsupportedURI = errors.New("unsupported output URI")

// Prober reports whether an output exists.
type Prober interface {
	Exists(ctx context.Context, uri string) (bool, error)
}

// Location is a parsed object URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits gs://bucket/key and s3://bucket/key URIs.
func ParseURI(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedURI, raw)
	}
	if u.Scheme != "gs" && u.Scheme != "s3" {
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedURI, raw)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %s: bucket and object are required", ErrUnsupportedURI, raw)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// SkipExisting marks jobs of sched completed when the output declared for
// them in m already exists, and returns their ids. Jobs whose output cannot
// be probed are left to run.
func SkipExisting(ctx context.Context, prober Prober, m *manifest.Manifest, sched *scheduler.Scheduler) ([]string, error) {
	var skipped []string
	for _, job := range m.Jobs {
		if job.Output == "" {
			continue
		}
		exists, err := prober.Exists(ctx, job.Output)
		if errors.Is(err, ErrUnsupportedURI) {
			logger.Warn(ctx, "Cannot check output; job will run", tag.Job(job.ID), tag.URL(job.Output), tag.Error(err))
			continue
		}
		if err != nil {
			return skipped, fmt.Errorf("failed to check output of %s: %w", job.ID, err)
		}
		if !exists {
			continue
		}
		if err := sched.MarkCompleted(job.ID); err != nil {
			return skipped, err
		}
		logger.Info(ctx, "Output exists; skipping job", tag.Job(job.ID), tag.URL(job.Output))
		skipped = append(skipped, job.ID)
	}
	return skipped, nil
}
