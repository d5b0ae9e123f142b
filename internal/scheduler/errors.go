package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/geetools/exportsched/internal/core"
)

var (
	// ErrDuplicateJob is returned when a job id is registered twice, directly
	// or through Merge.
	ErrDuplicateJob = errors.New("duplicate job id")
	// ErrInvalidJob is returned for a job without id or remote job.
	ErrInvalidJob = errors.New("invalid job")
	// ErrUnknownJob is returned for an id that is not registered.
	ErrUnknownJob = errors.New("unknown job id")
	// ErrNoJobs is returned by Run on an empty scheduler.
	ErrNoJobs = errors.New("tried to run a scheduler with no jobs")
	// ErrAlreadyRunning is returned when Run is called while a run is in progress.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrUnsatisfiable is wrapped by UnsatisfiableError.
	ErrUnsatisfiable = errors.New("possible circular dependency")
	// ErrJobFailed is wrapped by JobFailedError.
	ErrJobFailed = errors.New("job failed")
)

// UnsatisfiableError reports a graph that can make no further progress while
// nothing is in flight.
type UnsatisfiableError struct {
	Pending  []string
	Running  []string
	Finished []string
	// Missing lists dependency ids that were never registered.
	Missing []string
	// Cycle lists a dependency cycle among the pending jobs, first id
	// repeated at the end, when one exists.
	Cycle []string
}

func (e *UnsatisfiableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d pending job(s) cannot be scheduled", ErrUnsatisfiable, len(e.Pending))
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, "; cycle: %s", strings.Join(e.Cycle, " -> "))
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing dependencies: %s", strings.Join(e.Missing, ", "))
	}
	fmt.Fprintf(&b, "; pending: [%s]", strings.Join(e.Pending, ", "))
	return b.String()
}

func (e *UnsatisfiableError) Unwrap() error {
	return ErrUnsatisfiable
}

// JobFailedError is returned when the fail-fast policy is on and a job fails.
type JobFailedError struct {
	ID    string
	State core.State
	// Cause is set when the job failed to start.
	Cause error
}

func (e *JobFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("job %s failed: %v", e.ID, e.Cause)
	}
	return fmt.Sprintf("job %s failed with state %s", e.ID, e.State)
}

func (e *JobFailedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrJobFailed, e.Cause}
	}
	return []error{ErrJobFailed}
}
