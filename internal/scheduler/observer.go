package scheduler

import "context"

// Observer follows a run. Calls are made from the goroutine running
// Scheduler.Run and must not block for long.
type Observer interface {
	// JobStarted is called after a job is submitted, or adopted as already
	// in flight when the run begins.
	JobStarted(ctx context.Context, job *Job)
	// JobFinished is called once per job that reaches a terminal state during
	// the run, including jobs failed because a dependency failed.
	JobFinished(ctx context.Context, job *Job)
}

type observers []Observer

func (o observers) JobStarted(ctx context.Context, job *Job) {
	for _, ob := range o {
		ob.JobStarted(ctx, job)
	}
}

func (o observers) JobFinished(ctx context.Context, job *Job) {
	for _, ob := range o {
		ob.JobFinished(ctx, job)
	}
}
