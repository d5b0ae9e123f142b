package core

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a remote job as reported by the platform.
type State int

const (
	StateUnsubmitted State = iota
	StateReady
	StateRunning
	StateCompleted
	StateFailed
	StateCancelRequested
	StateCancelled
)

var stateNames = map[State]string{
	StateUnsubmitted:     "UNSUBMITTED",
	StateReady:           "READY",
	StateRunning:         "RUNNING",
	StateCompleted:       "COMPLETED",
	StateFailed:          "FAILED",
	StateCancelRequested: "CANCEL_REQUESTED",
	StateCancelled:       "CANCELLED",
}

// String returns the upper-case wire name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseState parses a wire name, case-insensitively.
func ParseState(s string) (State, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for state, name := range stateNames {
		if name == upper {
			return state, nil
		}
	}
	return StateUnsubmitted, fmt.Errorf("%w: %q", ErrUnknownState, s)
}

// IsTerminal reports whether the platform will no longer advance the job.
func (s State) IsTerminal() bool {
	switch s {
	case StateUnsubmitted, StateReady, StateRunning:
		return false
	default:
		return true
	}
}

// IsFailure reports whether s is a terminal state that is not a success.
// A pending cancellation already counts as failed.
func (s State) IsFailure() bool {
	return s == StateFailed || s == StateCancelRequested || s == StateCancelled
}

// IsActive reports whether the job is submitted and not yet terminal.
func (s State) IsActive() bool {
	return s == StateReady || s == StateRunning
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
