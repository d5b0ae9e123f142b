package manifest

import (
	"context"
	"fmt"

	"github.com/geetools/exportsched/internal/core"
	"github.com/geetools/exportsched/internal/platform"
	"github.com/geetools/exportsched/internal/scheduler"
	"github.com/geetools/exportsched/internal/simjob"
)

// Factory creates the remote job for a manifest entry.
type Factory func(ctx context.Context, job Job) (core.RemoteJob, error)

// Build registers every job of m into a new Scheduler configured by opts.
func (m *Manifest) Build(ctx context.Context, factory Factory, opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	s := scheduler.New(opts...)
	for _, job := range m.Jobs {
		remote, err := factory(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("failed to create job %s: %w", job.ID, err)
		}
		if err := s.AddTask(remote, job.ID, job.Depends...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PlatformFactory creates platform tasks submitted through client.
func PlatformFactory(client *platform.Client) Factory {
	return func(_ context.Context, job Job) (core.RemoteJob, error) {
		kind, err := platform.ParseKind(job.Kind)
		if err != nil {
			return nil, err
		}
		return platform.NewTask(client, kind, job.Request)
	}
}

// SimulatedFactory creates simulated jobs following each entry's simulate
// block; tracker may be nil.
func SimulatedFactory(tracker *simjob.Tracker) Factory {
	return func(_ context.Context, job Job) (core.RemoteJob, error) {
		polls, fail := 1, false
		if job.Simulate != nil {
			polls, fail = job.Simulate.Polls, job.Simulate.Fail
		}
		opts := []simjob.Option{simjob.WithTracker(tracker)}
		if fail {
			opts = append(opts, simjob.WithFailure())
		}
		return simjob.New(job.ID, polls, opts...), nil
	}
}
