// Package checkpoint persists the ids of jobs that finished successfully so
// an interrupted run can resume without submitting them again.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/geetools/exportsched/internal/cmn/config"
)

// ErrEmptyRunKey is returned when a store is used without a run key.
var ErrEmptyRunKey = errors.New("checkpoint run key is empty")

// Store records completed job ids per run key.
type Store interface {
	// Completed returns the ids recorded for runKey, sorted.
	Completed(ctx context.Context, runKey string) ([]string, error)
	MarkCompleted(ctx context.Context, runKey, id string) error
	// Reset forgets everything recorded for runKey.
	Reset(ctx context.Context, runKey string) error
	Close() error
}

// Open returns the store selected by cfg, or nil for the "none" backend.
func Open(ctx context.Context, cfg config.Checkpoint) (Store, error) {
	switch cfg.Backend {
	case "", config.CheckpointNone:
		return nil, nil
	case config.CheckpointFile:
		return NewFileStore(cfg.Dir)
	case config.CheckpointRedis:
		return NewRedisStore(ctx, cfg.RedisURL)
	case config.CheckpointPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func checkKey(runKey string) error {
	if runKey == "" {
		return ErrEmptyRunKey
	}
	return nil
}
