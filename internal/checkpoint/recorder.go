package checkpoint

import (
	"context"

	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/scheduler"
)

var _ scheduler.Observer = (*Recorder)(nil)

// Recorder writes every job that finishes successfully to a Store.
type Recorder struct {
	store  Store
	runKey string
}

// NewRecorder returns an observer recording into store under runKey.
func NewRecorder(store Store, runKey string) *Recorder {
	return &Recorder{store: store, runKey: runKey}
}

func (r *Recorder) JobStarted(context.Context, *scheduler.Job) {}

// JobFinished records successful jobs. Write errors are logged and do not
// affect the run.
func (r *Recorder) JobFinished(ctx context.Context, job *scheduler.Job) {
	if !job.Succeeded() {
		return
	}
	if err := r.store.MarkCompleted(ctx, r.runKey, job.ID()); err != nil {
		logger.Warn(ctx, "Failed to record checkpoint",
			tag.Job(job.ID()), tag.RunKey(r.runKey), tag.Error(err))
	}
}

// Resume marks every job recorded under runKey as completed in sched and
// returns the ids it applied. Recorded ids that sched does not know are
// skipped.
func Resume(ctx context.Context, store Store, runKey string, sched *scheduler.Scheduler) ([]string, error) {
	ids, err := store.Completed(ctx, runKey)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, id := range ids {
		if err := sched.MarkCompleted(id); err != nil {
			logger.Debug(ctx, "Ignoring checkpoint for unknown job", tag.Job(id), tag.RunKey(runKey))
			continue
		}
		applied = append(applied, id)
	}
	if len(applied) > 0 {
		logger.Info(ctx, "Resumed from checkpoint", tag.RunKey(runKey), tag.Count(len(applied)))
	}
	return applied, nil
}
