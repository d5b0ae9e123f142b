// Package simjob provides a simulated core.RemoteJob that finishes after a
// fixed number of status polls. It backs dry runs and scheduler tests.
package simjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geetools/exportsched/internal/core"
)

var _ core.RemoteJob = (*Job)(nil)
var _ core.Handle = (*Job)(nil)

// Job is a simulated remote job. Once started, each Status call consumes one
// poll; the poll that brings the remaining count to zero reports the final
// state.
type Job struct {
	mu        sync.Mutex
	name      string
	polls     int
	remaining int
	fail      bool
	state     core.State
	starts    int
	startErr  error
	statusErr error
	// statusFailures limits statusErr to that many polls; zero means all.
	statusFailures int
	cancelErr error
	tracker   *Tracker
}

// Option configures a Job.
type Option func(*Job)

// WithFailure makes the job finish in the FAILED state.
func WithFailure() Option {
	return func(j *Job) {
		j.fail = true
	}
}

// WithTracker records start and finish events of the job in t.
func WithTracker(t *Tracker) Option {
	return func(j *Job) {
		j.tracker = t
	}
}

// WithStartError makes Start fail with err.
func WithStartError(err error) Option {
	return func(j *Job) {
		j.startErr = err
	}
}

// WithStatusError makes every Status call fail with err.
func WithStatusError(err error) Option {
	return func(j *Job) {
		j.statusErr = err
	}
}

// WithStatusErrors makes the first n Status calls fail with err, as a
// rate-limited platform does.
func WithStatusErrors(n int, err error) Option {
	return func(j *Job) {
		j.statusErr = err
		j.statusFailures = n
	}
}

// WithCancelError makes Cancel fail with err.
func WithCancelError(err error) Option {
	return func(j *Job) {
		j.cancelErr = err
	}
}

// New returns a job that reaches its final state on the polls-th status poll
// after Start. polls of zero or less finishes on the first poll.
func New(name string, polls int, opts ...Option) *Job {
	if polls < 1 {
		polls = 1
	}
	j := &Job{name: name, polls: polls, remaining: polls, state: core.StateUnsubmitted}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Started returns a job that was already submitted before it was handed to a
// scheduler, as happens when a previous process started it.
func Started(name string, polls int, opts ...Option) *Job {
	j := New(name, polls, opts...)
	j.state = core.StateRunning
	j.starts = 1
	return j
}

func (j *Job) Start(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.starts++
	if j.state != core.StateUnsubmitted {
		return fmt.Errorf("%w: %s", core.ErrAlreadyStarted, j.name)
	}
	if j.startErr != nil {
		return j.startErr
	}
	j.state = core.StateReady
	j.tracker.record(j.name, EventStarted)
	return nil
}

func (j *Job) Status(_ context.Context) (core.State, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.statusErr != nil {
		err := j.statusErr
		if j.statusFailures > 0 {
			j.statusFailures--
			if j.statusFailures == 0 {
				j.statusErr = nil
			}
		}
		return j.state, err
	}
	if !j.state.IsActive() {
		return j.state, nil
	}

	j.remaining--
	if j.remaining > 0 {
		j.state = core.StateRunning
		return j.state, nil
	}
	if j.fail {
		j.state = core.StateFailed
	} else {
		j.state = core.StateCompleted
	}
	j.tracker.record(j.name, EventFinished)
	return j.state, nil
}

func (j *Job) Cancel(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancelErr != nil {
		return j.cancelErr
	}
	if j.state.IsActive() {
		j.state = core.StateCancelled
		j.tracker.record(j.name, EventFinished)
	}
	return nil
}

// Handle returns a synthetic remote handle once the job has been submitted.
func (j *Job) Handle() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == core.StateUnsubmitted {
		return ""
	}
	return "sim/" + j.name
}

// Name returns the job name.
func (j *Job) Name() string {
	return j.name
}

// State returns the current simulated state without consuming a poll.
func (j *Job) State() core.State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Starts returns how many times Start was called, counting a submission
// made before the job was handed over.
func (j *Job) Starts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.starts
}

// EventKind distinguishes tracker events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventFinished
)

func (k EventKind) String() string {
	if k == EventStarted {
		return "started"
	}
	return "finished"
}

// Event is one recorded transition.
type Event struct {
	Seq  int
	Job  string
	Kind EventKind
	At   time.Time
	// Active is the number of started, unfinished jobs right after the event.
	Active int
}

// Tracker records the start and finish order of a set of simulated jobs and
// the peak number of jobs active at once.
type Tracker struct {
	mu        sync.Mutex
	events    []Event
	active    int
	maxActive int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) record(job string, kind EventKind) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	switch kind {
	case EventStarted:
		t.active++
		t.maxActive = max(t.maxActive, t.active)
	case EventFinished:
		t.active--
	}
	t.events = append(t.events, Event{
		Seq:    len(t.events),
		Job:    job,
		Kind:   kind,
		At:     time.Now(),
		Active: t.active,
	})
}

// Events returns a copy of the recorded events in order.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// MaxActive returns the peak number of jobs active at once.
func (t *Tracker) MaxActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxActive
}

// Seq returns the sequence number of the first event of kind for job, or -1.
func (t *Tracker) Seq(job string, kind EventKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if e.Job == job && e.Kind == kind {
			return e.Seq
		}
	}
	return -1
}
