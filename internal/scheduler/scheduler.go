// Package scheduler runs a graph of remote jobs with dependency ordering,
// a bound on the number of jobs in flight and failure propagation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
	"github.com/geetools/exportsched/internal/core"
)

const (
	DefaultMaxConcurrency = 8
	DefaultPollInterval   = 2 * time.Minute
)

type options struct {
	maxConcurrency  int
	pollInterval    time.Duration
	maxPollInterval time.Duration
	timeout         time.Duration
	errorOnFail     bool
	verbose         int
	observers       observers
}

// Option configures a Scheduler.
type Option func(*options)

// WithMaxConcurrency bounds the number of jobs in flight. Values below 1 are
// treated as 1.
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrency = max(n, 1)
	}
}

// WithPollInterval sets the wait between status polls of in-flight jobs.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxPollInterval lets the poll wait double while no job finishes, up to
// d. Zero keeps the interval constant.
func WithMaxPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.maxPollInterval = d
	}
}

// WithTimeout bounds the duration of Run. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithErrorOnFail makes Run return as soon as a job is seen failing.
func WithErrorOnFail(v bool) Option {
	return func(o *options) {
		o.errorOnFail = v
	}
}

// WithVerbose sets the progress verbosity: above 0 logs starts, above 2
// finishes, above 6 waits, above 9 dumps the graph when it cannot proceed.
func WithVerbose(level int) Option {
	return func(o *options) {
		o.verbose = level
	}
}

// WithObserver adds an Observer. It may be given more than once.
func WithObserver(ob Observer) Option {
	return func(o *options) {
		if ob != nil {
			o.observers = append(o.observers, ob)
		}
	}
}

// Scheduler owns a set of jobs keyed by id. Jobs are iterated in insertion
// order. All methods are safe for concurrent use, so CancelAll may be called
// while Run is in progress.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	opts    options
	running bool
}

// New creates an empty Scheduler.
func New(opts ...Option) *Scheduler {
	o := options{
		maxConcurrency: DefaultMaxConcurrency,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{jobs: make(map[string]*Job), opts: o}
}

// AddTask registers remote under id. Dependencies may name jobs that are
// added later but must all exist when Run is called.
func (s *Scheduler) AddTask(remote core.RemoteJob, id string, deps ...string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	if remote == nil {
		return fmt.Errorf("%w: %s has no remote job", ErrInvalidJob, id)
	}
	return s.add(NewJob(remote, id, deps...))
}

func (s *Scheduler) add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.id)
	}
	s.jobs[job.id] = job
	s.order = append(s.order, job.id)
	return nil
}

// Job returns the job registered under id.
func (s *Scheduler) Job(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return job, nil
}

// Jobs returns all jobs in insertion order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Scheduler) snapshot() []*Job {
	return lo.Map(s.order, func(id string, _ int) *Job { return s.jobs[id] })
}

// RemoteJobs returns the remote jobs in insertion order, finished ones included.
func (s *Scheduler) RemoteJobs() []core.RemoteJob {
	return lo.Map(s.Jobs(), func(j *Job, _ int) core.RemoteJob { return j.remote })
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// MarkCompleted treats the job as already finished successfully. Run will
// neither start nor poll it, and its dependents may start.
func (s *Scheduler) MarkCompleted(id string) error {
	job, err := s.Job(id)
	if err != nil {
		return err
	}
	job.MarkCompleted()
	return nil
}

// MarkFailed treats the job as already failed. Its dependents will fail
// without starting.
func (s *Scheduler) MarkFailed(id string) error {
	job, err := s.Job(id)
	if err != nil {
		return err
	}
	job.MarkFailed()
	return nil
}

// MarkAllCompleted marks every registered job completed.
func (s *Scheduler) MarkAllCompleted() {
	for _, job := range s.Jobs() {
		job.MarkCompleted()
	}
}

// Merge returns a new Scheduler holding the jobs of s followed by those of
// other, with the options of s. The Job values are shared, not copied:
// marking a job in one scheduler marks it in the other.
func (s *Scheduler) Merge(other *Scheduler) (*Scheduler, error) {
	merged := &Scheduler{jobs: make(map[string]*Job), opts: s.opts}
	for _, job := range append(s.Jobs(), other.Jobs()...) {
		if err := merged.add(job); err != nil {
			return nil, fmt.Errorf("failed to merge schedulers: %w", err)
		}
	}
	return merged, nil
}

// StartAndRemoveAll starts every job regardless of its dependencies and
// empties the scheduler. It returns the remote jobs that were removed along
// with the joined start errors.
func (s *Scheduler) StartAndRemoveAll(ctx context.Context) ([]core.RemoteJob, error) {
	s.mu.Lock()
	jobs := s.snapshot()
	s.jobs = make(map[string]*Job)
	s.order = nil
	s.mu.Unlock()

	var errs []error
	remotes := make([]core.RemoteJob, 0, len(jobs))
	for _, job := range jobs {
		if err := job.Start(ctx); err != nil {
			errs = append(errs, err)
		} else if s.opts.verbose > 0 {
			logger.Info(ctx, "Job started", tag.Job(job.id))
		}
		remotes = append(remotes, job.remote)
	}
	return remotes, errors.Join(errs...)
}

// CancelAll asks every job to cancel. Errors are logged and otherwise
// ignored so one failure does not stop the rest.
func (s *Scheduler) CancelAll(ctx context.Context) {
	for _, job := range s.Jobs() {
		if err := job.remote.Cancel(ctx); err != nil {
			logger.Debug(ctx, "Cancel failed", tag.Job(job.id), tag.Error(err))
		}
	}
}
