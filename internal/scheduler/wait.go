package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/geetools/exportsched/internal/cmn/backoff"
	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/core"
)

// Lister lists the remote jobs that are submitted and not yet finished.
type Lister interface {
	ListActive(ctx context.Context) ([]core.RemoteJob, error)
}

// WaitAny polls jobs until at least one is finished and returns the jobs
// still queued and those finished, preserving order. Between rounds it waits
// as directed by policy. A failed job counts as finished. Poll errors are
// logged and the job stays queued.
//
// A job that was never started stays queued forever; bound ctx to avoid
// waiting on one indefinitely.
func WaitAny(ctx context.Context, jobs []*Job, policy backoff.Policy) (running, finished []*Job, err error) {
	if len(jobs) == 0 {
		return nil, nil, nil
	}
	retrier := backoff.NewRetrier(policy)

	for {
		running, finished = partition(ctx, jobs)
		if len(finished) > 0 {
			return running, finished, nil
		}
		if err := sleep(ctx, retrier); err != nil {
			return jobs, nil, err
		}
	}
}

// WaitAll polls jobs until every one of them is finished.
func WaitAll(ctx context.Context, jobs []*Job, policy backoff.Policy) error {
	retrier := backoff.NewRetrier(policy)
	remaining := jobs

	for len(remaining) > 0 {
		var finished []*Job
		remaining, finished = partition(ctx, remaining)
		if len(remaining) == 0 {
			break
		}
		if len(finished) > 0 {
			retrier.Reset()
		}
		logger.Debug(ctx, "Jobs remaining", tag.Count(len(remaining)))
		if err := sleep(ctx, retrier); err != nil {
			return err
		}
	}
	return nil
}

// WaitForExisting blocks until none of the remote jobs listed by lister at
// call time is still queued. It does not consult any Scheduler.
func WaitForExisting(ctx context.Context, lister Lister, policy backoff.Policy) error {
	remotes, err := lister.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(remotes))
	for i, remote := range remotes {
		id := core.HandleOf(remote)
		if id == "" {
			id = strconv.Itoa(i)
		}
		jobs = append(jobs, NewJob(remote, id))
	}

	logger.Info(ctx, "Waiting for existing jobs", tag.Count(len(jobs)))
	return WaitAll(ctx, jobs, policy)
}

func partition(ctx context.Context, jobs []*Job) (queued, finished []*Job) {
	for _, job := range jobs {
		q, err := job.Queued(ctx)
		if err != nil {
			logger.Warn(ctx, "Failed to poll job status", tag.Job(job.id), tag.Error(err))
		}
		if q {
			queued = append(queued, job)
		} else {
			finished = append(finished, job)
		}
	}
	return queued, finished
}

func sleep(ctx context.Context, retrier backoff.Retrier) error {
	interval, err := retrier.Next()
	if err != nil {
		return fmt.Errorf("gave up polling: %w", err)
	}
	return backoff.Wait(ctx, interval)
}
