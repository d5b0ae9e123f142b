package core

import "errors"

var (
	// ErrAlreadyStarted is returned by RemoteJob.Start on a job that was
	// already submitted.
	ErrAlreadyStarted = errors.New("remote job already started")
	// ErrUnknownState is returned when a state name cannot be parsed.
	ErrUnknownState = errors.New("unknown remote job state")
)
