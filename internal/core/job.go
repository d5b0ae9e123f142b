// Package core defines the contract between the scheduler and the remote
// work it drives.
package core

import "context"

// RemoteJob is one unit of remote, asynchronous, long-running work.
//
// Start submits the work and must be called at most once; a second call
// returns ErrAlreadyStarted. Status polls the platform and may be slow or
// rate limited. Cancel is best effort.
type RemoteJob interface {
	Start(ctx context.Context) error
	Status(ctx context.Context) (State, error)
	Cancel(ctx context.Context) error
}

// Handle is implemented by remote jobs that expose the platform-assigned
// identity once started.
type Handle interface {
	Handle() string
}

// HandleOf returns the remote handle of job, or "" if it has none yet.
func HandleOf(job RemoteJob) string {
	if h, ok := job.(Handle); ok {
		return h.Handle()
	}
	return ""
}
