package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/geetools/exportsched/internal/core"
)

// Phase is the locally tracked lifecycle of a Job.
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job wraps a RemoteJob with its identifier, its dependencies and the
// terminal state cached from polling. Once a Job is finished it is never
// polled again.
type Job struct {
	id     string
	deps   []string
	remote core.RemoteJob

	mu       sync.Mutex
	started  bool
	finished bool
	failed   bool
	state    core.State
}

// NewJob creates a Job. Duplicate dependency ids are dropped.
func NewJob(remote core.RemoteJob, id string, deps ...string) *Job {
	var uniq []string
	for _, d := range deps {
		if !slices.Contains(uniq, d) {
			uniq = append(uniq, d)
		}
	}
	return &Job{id: id, deps: uniq, remote: remote, state: core.StateUnsubmitted}
}

func (j *Job) ID() string { return j.id }

// Dependencies returns the ids this job waits for.
func (j *Job) Dependencies() []string {
	return slices.Clone(j.deps)
}

func (j *Job) RemoteJob() core.RemoteJob { return j.remote }

// Start submits the remote job. A Job is started at most once: later calls
// return core.ErrAlreadyStarted without reaching the remote side, even when
// the first attempt failed.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return fmt.Errorf("%w: job %s", core.ErrAlreadyStarted, j.id)
	}
	j.started = true
	if err := j.remote.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job %s: %w", j.id, err)
	}
	return nil
}

// Queued reports whether the job has not reached a terminal state. Unless a
// terminal state is cached, it polls the remote job. A poll error leaves the
// job queued and is returned to the caller.
func (j *Job) Queued(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.finished {
		return false, nil
	}
	state, err := j.remote.Status(ctx)
	if err != nil {
		return true, fmt.Errorf("failed to poll job %s: %w", j.id, err)
	}
	j.observe(state)
	return !j.finished, nil
}

func (j *Job) observe(state core.State) {
	j.state = state
	if state != core.StateUnsubmitted {
		// Submitted elsewhere, e.g. by an earlier process.
		j.started = true
	}
	if state.IsTerminal() {
		j.finished = true
		j.failed = state.IsFailure()
	}
}

// Finished is the negation of Queued.
func (j *Job) Finished(ctx context.Context) (bool, error) {
	queued, err := j.Queued(ctx)
	return !queued, err
}

// Failed reports whether the job finished in a failure state, polling once
// if no terminal state is cached yet.
func (j *Job) Failed(ctx context.Context) (bool, error) {
	if _, err := j.Queued(ctx); err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failed, nil
}

// Done reports the cached terminal flag without polling.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// Succeeded reports whether the job is cached as finished without failure.
func (j *Job) Succeeded() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished && !j.failed
}

// Started reports whether the job was submitted, by this process or observed
// as already submitted.
func (j *Job) Started() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// State returns the last remote state observed by polling.
func (j *Job) State() core.State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Phase summarises the local lifecycle of the job.
func (j *Job) Phase() Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.finished && j.failed:
		return PhaseFailed
	case j.finished:
		return PhaseSucceeded
	case j.started:
		return PhaseRunning
	default:
		return PhasePending
	}
}

// MarkCompleted caches the job as finished successfully without polling or
// starting it. It is meant for resuming a run whose work already completed
// out of band; the remote job is never consulted again.
func (j *Job) MarkCompleted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	j.failed = false
}

// MarkFailed caches the job as finished with failure without polling it.
// Dependents of the job will be failed without being started.
func (j *Job) MarkFailed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	j.failed = true
}

// DependsOn reports whether other is a direct dependency of j.
func (j *Job) DependsOn(other *Job) bool {
	return other != nil && slices.Contains(j.deps, other.id)
}

func (j *Job) String() string {
	return fmt.Sprintf("Job(%s, deps=[%s], phase=%s, state=%s)",
		j.id, strings.Join(j.deps, ","), j.Phase(), j.State())
}
