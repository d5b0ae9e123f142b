package scheduler

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/geetools/exportsched/internal/cmn/backoff"
	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
)

type readiness int

const (
	waiting readiness = iota
	ready
	upstreamFailed
)

// runState is the bookkeeping of a single Run call.
type runState struct {
	opts    options
	jobs    []*Job
	byID    map[string]*Job
	pending []*Job
	running []*Job
	// unpolled holds jobs whose status could not be read yet. They may be
	// in flight remotely, so they take a slot and are never started until
	// a poll succeeds.
	unpolled []*Job
}

// Run drives the graph until every job is finished and returns all jobs in
// insertion order, including those finished before Run was called.
//
// Jobs already submitted when Run begins are adopted as in flight and never
// started again. A job whose dependency failed is marked failed without
// being started. If no job can make progress while nothing is in flight,
// Run returns an *UnsatisfiableError. With the fail-fast policy the first
// failure observed ends the run with a *JobFailedError; in-flight jobs keep
// running remotely.
func (s *Scheduler) Run(ctx context.Context) ([]*Job, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if len(s.order) == 0 {
		s.mu.Unlock()
		return nil, ErrNoJobs
	}
	s.running = true
	r := &runState{opts: s.opts, jobs: s.snapshot(), byID: make(map[string]*Job, len(s.order))}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for _, job := range r.jobs {
		r.byID[job.id] = job
	}

	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	err := r.execute(ctx)
	logger.Debug(ctx, "Scheduler run ended",
		tag.Elapsed(time.Since(startedAt)),
		tag.Count(len(r.jobs)),
		tag.Error(err),
	)
	return r.jobs, err
}

func (r *runState) execute(ctx context.Context) error {
	r.refresh(ctx)

	for len(r.pending) > 0 || len(r.running) > 0 || len(r.unpolled) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		resolved := r.repoll(ctx)
		progress, err := r.scan(ctx)
		if err != nil {
			return err
		}
		if progress || resolved {
			continue
		}

		if len(r.running) == 0 {
			if len(r.unpolled) > 0 {
				if err := backoff.Wait(ctx, r.opts.pollInterval); err != nil {
					return err
				}
				continue
			}
			return r.unsatisfiable(ctx)
		}
		if err := r.waitRunning(ctx); err != nil {
			return err
		}
	}

	if r.opts.verbose > 6 {
		logger.Info(ctx, "All jobs have finished")
	}
	return nil
}

// refresh polls every job without a cached terminal state once, so that
// jobs submitted before the run are adopted instead of started again.
func (r *runState) refresh(ctx context.Context) {
	for _, job := range r.jobs {
		if job.Done() {
			continue
		}
		queued, err := job.Queued(ctx)
		if err != nil {
			logger.Warn(ctx, "Failed to poll job status", tag.Job(job.id), tag.Error(err))
			r.unpolled = append(r.unpolled, job)
			continue
		}
		r.classify(ctx, job, queued)
	}
}

// repoll retries the status of unpolled jobs and reports whether any of
// them could be classified.
func (r *runState) repoll(ctx context.Context) bool {
	if len(r.unpolled) == 0 {
		return false
	}
	var remaining []*Job
	for _, job := range r.unpolled {
		queued, err := job.Queued(ctx)
		if err != nil {
			logger.Debug(ctx, "Job status still unavailable", tag.Job(job.id), tag.Error(err))
			remaining = append(remaining, job)
			continue
		}
		r.classify(ctx, job, queued)
	}
	resolved := len(remaining) < len(r.unpolled)
	r.unpolled = remaining
	return resolved
}

func (r *runState) classify(ctx context.Context, job *Job, queued bool) {
	switch {
	case !queued:
		if r.opts.verbose > 2 {
			logger.Info(ctx, "Job already finished", tag.Job(job.id), tag.State(job.State().String()))
		}
	case job.Started():
		r.running = append(r.running, job)
		r.opts.observers.JobStarted(ctx, job)
		if r.opts.verbose > 0 {
			logger.Info(ctx, "Adopted running job", tag.Job(job.id), tag.State(job.State().String()))
		}
	default:
		r.pending = append(r.pending, job)
	}
}

// scan makes one pass over the pending jobs in insertion order. A job with a
// failed dependency is failed at once without using a slot; a job whose
// dependencies all succeeded is started if a slot is free. It reports whether
// any job changed state.
func (r *runState) scan(ctx context.Context) (bool, error) {
	progress := false
	var remaining []*Job

	for i, job := range r.pending {
		if job.Done() {
			progress = true
			r.opts.observers.JobFinished(ctx, job)
			continue
		}
		switch r.readiness(job) {
		case upstreamFailed:
			job.MarkFailed()
			progress = true
			r.opts.observers.JobFinished(ctx, job)
			if r.opts.verbose > 2 {
				logger.Info(ctx, "Job failed because a dependency failed", tag.Job(job.id))
			}

		case ready:
			if len(r.running)+len(r.unpolled) >= r.opts.maxConcurrency {
				remaining = append(remaining, job)
				continue
			}
			progress = true
			if err := job.Start(ctx); err != nil {
				job.MarkFailed()
				r.opts.observers.JobFinished(ctx, job)
				logger.Error(ctx, "Failed to start job", tag.Job(job.id), tag.Error(err))
				if r.opts.errorOnFail {
					r.pending = append(remaining, r.pending[i+1:]...)
					return true, &JobFailedError{ID: job.id, State: job.State(), Cause: err}
				}
				continue
			}
			r.running = append(r.running, job)
			r.opts.observers.JobStarted(ctx, job)
			if r.opts.verbose > 0 {
				logger.Info(ctx, "Job started", tag.Job(job.id), tag.Running(len(r.running)))
			}

		default:
			remaining = append(remaining, job)
		}
	}

	r.pending = remaining
	return progress, nil
}

func (r *runState) readiness(job *Job) readiness {
	result := ready
	for _, id := range job.deps {
		dep, ok := r.byID[id]
		if !ok || !dep.Done() {
			result = waiting
			continue
		}
		if !dep.Succeeded() {
			return upstreamFailed
		}
	}
	return result
}

// waitRunning blocks until at least one in-flight job finishes.
func (r *runState) waitRunning(ctx context.Context) error {
	if r.opts.verbose > 6 {
		logger.Info(ctx, "Waiting for a job to finish",
			tag.Running(len(r.running)),
			tag.Pending(len(r.pending)),
		)
	}

	policy := backoff.PollPolicy(r.opts.pollInterval, r.opts.maxPollInterval)
	running, finished, err := WaitAny(ctx, r.running, policy)
	if err != nil {
		return err
	}
	r.running = running

	var failed *Job
	for _, job := range finished {
		r.opts.observers.JobFinished(ctx, job)
		if r.opts.verbose > 2 {
			logger.Info(ctx, "Job finished",
				tag.Job(job.id),
				tag.State(job.State().String()),
				tag.String("result", job.Phase().String()),
			)
		}
		if failed == nil && !job.Succeeded() {
			failed = job
		}
	}

	if r.opts.errorOnFail && failed != nil {
		return &JobFailedError{ID: failed.id, State: failed.State()}
	}
	return nil
}

func (r *runState) unsatisfiable(ctx context.Context) error {
	finished := lo.Filter(r.jobs, func(j *Job, _ int) bool { return j.Done() })
	err := &UnsatisfiableError{
		Pending:  ids(r.pending),
		Running:  ids(r.running),
		Finished: ids(finished),
		Cycle:    findCycle(r.pending),
	}
	for _, job := range r.pending {
		for _, dep := range job.deps {
			if _, ok := r.byID[dep]; !ok && !slices.Contains(err.Missing, dep) {
				err.Missing = append(err.Missing, dep)
			}
		}
	}

	if r.opts.verbose > 9 {
		logger.Error(ctx, "Scheduler cannot make progress",
			tag.String("pending", dump(r.pending)),
			tag.String("finished", dump(finished)),
			tag.Jobs(ids(r.jobs)),
		)
	}
	return err
}

// findCycle returns a dependency cycle among jobs, or nil.
func findCycle(jobs []*Job) []string {
	byID := lo.KeyBy(jobs, func(j *Job) string { return j.id })

	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(jobs))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		marks[id] = visiting
		stack = append(stack, id)
		for _, dep := range byID[id].deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch marks[dep] {
			case visiting:
				start := slices.Index(stack, dep)
				return append(slices.Clone(stack[start:]), dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		marks[id] = visited
		return nil
	}

	for _, job := range jobs {
		if marks[job.id] == unvisited {
			if cycle := visit(job.id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func ids(jobs []*Job) []string {
	return lo.Map(jobs, func(j *Job, _ int) string { return j.id })
}

func dump(jobs []*Job) string {
	return strings.Join(lo.Map(jobs, func(j *Job, _ int) string { return j.String() }), "; ")
}
