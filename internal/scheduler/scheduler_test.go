package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/geetools/exportsched/internal/core"
	"github.com/geetools/exportsched/internal/simjob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(opts ...Option) *Scheduler {
	base := []Option{WithPollInterval(time.Millisecond)}
	return New(append(base, opts...)...)
}

func phases(jobs []*Job) map[string]Phase {
	out := make(map[string]Phase, len(jobs))
	for _, j := range jobs {
		out[j.ID()] = j.Phase()
	}
	return out
}

func TestRun_EndToEnd(t *testing.T) {
	tracker := simjob.NewTracker()
	a := simjob.New("A", 2, simjob.WithTracker(tracker))
	b := simjob.New("B", 1, simjob.WithTracker(tracker))
	c := simjob.New("C", 1, simjob.WithTracker(tracker), simjob.WithFailure())
	d := simjob.New("D", 1, simjob.WithTracker(tracker))

	s := newTestScheduler()
	require.NoError(t, s.AddTask(a, "A"))
	require.NoError(t, s.AddTask(b, "B", "A"))
	require.NoError(t, s.AddTask(c, "C", "A"))
	require.NoError(t, s.AddTask(d, "D", "B", "C"))

	jobs, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(jobs))

	assert.Equal(t, map[string]Phase{
		"A": PhaseSucceeded,
		"B": PhaseSucceeded,
		"C": PhaseFailed,
		"D": PhaseFailed,
	}, phases(jobs))

	assert.Equal(t, 0, tracker.Seq("A", simjob.EventStarted))
	aDone := tracker.Seq("A", simjob.EventFinished)
	assert.Greater(t, tracker.Seq("B", simjob.EventStarted), aDone)
	assert.Greater(t, tracker.Seq("C", simjob.EventStarted), aDone)
	assert.Equal(t, 0, d.Starts())
	assert.False(t, jobs[3].Started())
}

func TestRun_ConcurrencyBound(t *testing.T) {
	tracker := simjob.NewTracker()
	s := newTestScheduler(WithMaxConcurrency(4))
	var remotes []*simjob.Job
	for i := range 10 {
		remote := simjob.New(fmt.Sprintf("job-%d", i), 3, simjob.WithTracker(tracker))
		remotes = append(remotes, remote)
		require.NoError(t, s.AddTask(remote, remote.Name()))
	}

	jobs, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, tracker.MaxActive())
	for _, e := range tracker.Events() {
		assert.LessOrEqual(t, e.Active, 4)
	}
	for _, j := range jobs {
		assert.Equal(t, PhaseSucceeded, j.Phase())
	}
	for _, r := range remotes {
		assert.Equal(t, 1, r.Starts())
	}
}

func TestRun_RandomGraph(t *testing.T) {
	for seed := range uint64(5) {
		t.Run(fmt.Sprintf("Seed%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, 42))
			const n = 40
			const limit = 3

			tracker := simjob.NewTracker()
			remotes := make([]*simjob.Job, n)
			deps := make([][]string, n)
			fails := make([]bool, n)
			for i := range n {
				for j := range i {
					if rng.IntN(6) == 0 {
						deps[i] = append(deps[i], fmt.Sprintf("%d", j))
					}
				}
				var opts []simjob.Option
				opts = append(opts, simjob.WithTracker(tracker))
				if rng.IntN(8) == 0 {
					fails[i] = true
					opts = append(opts, simjob.WithFailure())
				}
				remotes[i] = simjob.New(fmt.Sprintf("%d", i), 1+rng.IntN(3), opts...)
			}

			// Register in random order so dependencies are often added after
			// their dependents.
			s := newTestScheduler(WithMaxConcurrency(limit))
			for _, i := range rng.Perm(n) {
				require.NoError(t, s.AddTask(remotes[i], remotes[i].Name(), deps[i]...))
			}

			jobs, err := s.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, jobs, n)
			assert.LessOrEqual(t, tracker.MaxActive(), limit)

			succeeded := make([]bool, n)
			for i := range n {
				depsOK := true
				for _, d := range deps[i] {
					var j int
					_, _ = fmt.Sscanf(d, "%d", &j)
					depsOK = depsOK && succeeded[j]
				}
				succeeded[i] = depsOK && !fails[i]

				name := remotes[i].Name()
				job, err := s.Job(name)
				require.NoError(t, err)

				if !depsOK {
					assert.Equal(t, 0, remotes[i].Starts(), "job %s started despite failed dependency", name)
					assert.Equal(t, PhaseFailed, job.Phase())
					continue
				}
				assert.Equal(t, 1, remotes[i].Starts(), "job %s", name)
				started := tracker.Seq(name, simjob.EventStarted)
				for _, d := range deps[i] {
					assert.Less(t, tracker.Seq(d, simjob.EventFinished), started,
						"job %s started before dependency %s finished", name, d)
				}
				if succeeded[i] {
					assert.Equal(t, PhaseSucceeded, job.Phase())
				} else {
					assert.Equal(t, PhaseFailed, job.Phase())
				}
			}
		})
	}
}

func TestRun_Cycle(t *testing.T) {
	s := newTestScheduler()
	c := simjob.New("C", 1)
	require.NoError(t, s.AddTask(simjob.New("A", 1), "A", "B"))
	require.NoError(t, s.AddTask(simjob.New("B", 1), "B", "A"))
	require.NoError(t, s.AddTask(c, "C"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not detect the cycle")
	}

	require.ErrorIs(t, err, ErrUnsatisfiable)
	var uerr *UnsatisfiableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{"A", "B"}, uerr.Pending)
	assert.Equal(t, []string{"C"}, uerr.Finished)
	assert.Empty(t, uerr.Running)
	assert.Empty(t, uerr.Missing)
	assert.Equal(t, []string{"A", "B", "A"}, uerr.Cycle)
	assert.Contains(t, err.Error(), "A -> B -> A")
	assert.Equal(t, 1, c.Starts())
}

func TestRun_MissingDependency(t *testing.T) {
	s := newTestScheduler(WithVerbose(10))
	require.NoError(t, s.AddTask(simjob.New("A", 1), "A", "ghost"))
	require.NoError(t, s.AddTask(simjob.New("B", 1), "B", "A"))

	_, err := s.Run(context.Background())

	var uerr *UnsatisfiableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{"ghost"}, uerr.Missing)
	assert.Nil(t, uerr.Cycle)
	assert.Equal(t, []string{"A", "B"}, uerr.Pending)
}

func TestRun_SelfDependency(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask(simjob.New("A", 1), "A", "A"))

	_, err := s.Run(context.Background())

	var uerr *UnsatisfiableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{"A", "A"}, uerr.Cycle)
}

func TestRun_Resume(t *testing.T) {
	t.Run("MarkCompleted", func(t *testing.T) {
		a := simjob.New("A", 1)
		b := simjob.New("B", 1)
		s := newTestScheduler()
		require.NoError(t, s.AddTask(a, "A"))
		require.NoError(t, s.AddTask(b, "B", "A"))
		require.NoError(t, s.MarkCompleted("A"))

		jobs, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, a.Starts())
		assert.Equal(t, 1, b.Starts())
		assert.Equal(t, map[string]Phase{"A": PhaseSucceeded, "B": PhaseSucceeded}, phases(jobs))
	})

	t.Run("MarkAllCompleted", func(t *testing.T) {
		a := simjob.New("A", 1)
		s := newTestScheduler()
		require.NoError(t, s.AddTask(a, "A"))
		s.MarkAllCompleted()

		_, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, a.Starts())
	})

	t.Run("MarkFailed", func(t *testing.T) {
		a := simjob.New("A", 1)
		b := simjob.New("B", 1)
		s := newTestScheduler()
		require.NoError(t, s.AddTask(a, "A"))
		require.NoError(t, s.AddTask(b, "B", "A"))
		require.NoError(t, s.MarkFailed("A"))

		jobs, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, b.Starts())
		assert.Equal(t, map[string]Phase{"A": PhaseFailed, "B": PhaseFailed}, phases(jobs))
	})

	t.Run("AdoptsStartedJob", func(t *testing.T) {
		tracker := simjob.NewTracker()
		a := simjob.Started("A", 2, simjob.WithTracker(tracker))
		b := simjob.New("B", 1, simjob.WithTracker(tracker))
		s := newTestScheduler(WithMaxConcurrency(1))
		require.NoError(t, s.AddTask(a, "A"))
		require.NoError(t, s.AddTask(b, "B", "A"))

		jobs, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, a.Starts())
		assert.Equal(t, 1, b.Starts())
		assert.Equal(t, map[string]Phase{"A": PhaseSucceeded, "B": PhaseSucceeded}, phases(jobs))
	})

	t.Run("RunTwice", func(t *testing.T) {
		a := simjob.New("A", 1)
		s := newTestScheduler()
		require.NoError(t, s.AddTask(a, "A"))

		_, err := s.Run(context.Background())
		require.NoError(t, err)
		_, err = s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, a.Starts())
	})
}

func TestRun_ErrorOnFail(t *testing.T) {
	t.Run("FailedJob", func(t *testing.T) {
		a := simjob.New("A", 1, simjob.WithFailure())
		b := simjob.New("B", 50)
		s := newTestScheduler(WithErrorOnFail(true))
		require.NoError(t, s.AddTask(a, "A"))
		require.NoError(t, s.AddTask(b, "B"))

		jobs, err := s.Run(context.Background())
		require.ErrorIs(t, err, ErrJobFailed)
		var ferr *JobFailedError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, "A", ferr.ID)
		assert.Equal(t, core.StateFailed, ferr.State)
		assert.Len(t, jobs, 2)
		assert.Equal(t, core.StateRunning, b.State())
	})

	t.Run("StartFailure", func(t *testing.T) {
		boom := errors.New("invalid request")
		s := newTestScheduler(WithErrorOnFail(true))
		require.NoError(t, s.AddTask(simjob.New("A", 1, simjob.WithStartError(boom)), "A"))

		_, err := s.Run(context.Background())
		require.ErrorIs(t, err, ErrJobFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("DisabledContinuesSiblings", func(t *testing.T) {
		boom := errors.New("invalid request")
		s := newTestScheduler()
		require.NoError(t, s.AddTask(simjob.New("A", 1, simjob.WithStartError(boom)), "A"))
		require.NoError(t, s.AddTask(simjob.New("B", 1), "B", "A"))
		require.NoError(t, s.AddTask(simjob.New("C", 1), "C"))

		jobs, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]Phase{
			"A": PhaseFailed,
			"B": PhaseFailed,
			"C": PhaseSucceeded,
		}, phases(jobs))
	})
}

func TestRun_NoJobs(t *testing.T) {
	_, err := New().Run(context.Background())
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestRun_Timeout(t *testing.T) {
	s := newTestScheduler(WithTimeout(30 * time.Millisecond))
	require.NoError(t, s.AddTask(simjob.New("A", 1_000_000), "A"))

	jobs, err := s.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, jobs, 1)
	assert.Equal(t, PhaseRunning, jobs[0].Phase())
}

func TestRun_CancelAllDuringRun(t *testing.T) {
	a := simjob.New("A", 1_000_000)
	b := simjob.New("B", 1)
	s := newTestScheduler()
	require.NoError(t, s.AddTask(a, "A"))
	require.NoError(t, s.AddTask(b, "B", "A"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return a.Starts() == 1 }, 5*time.Second, time.Millisecond)

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	s.CancelAll(context.Background())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after CancelAll")
	}
	assert.Equal(t, core.StateCancelled, a.State())
	assert.Equal(t, 0, b.Starts())
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (o *recordingObserver) JobStarted(_ context.Context, job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, job.ID())
}

func (o *recordingObserver) JobFinished(_ context.Context, job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, job.ID())
}

func TestRun_Observer(t *testing.T) {
	ob := &recordingObserver{}
	s := newTestScheduler(WithObserver(ob), WithMaxConcurrency(1))
	require.NoError(t, s.AddTask(simjob.New("A", 1, simjob.WithFailure()), "A"))
	require.NoError(t, s.AddTask(simjob.New("B", 1), "B", "A"))
	require.NoError(t, s.AddTask(simjob.New("C", 1), "C"))
	require.NoError(t, s.AddTask(simjob.New("D", 1), "D"))
	require.NoError(t, s.MarkCompleted("D"))

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ob.started)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, ob.finished)
}

func TestScheduler_AddTask(t *testing.T) {
	s := New()
	require.NoError(t, s.AddTask(simjob.New("x", 1), "x"))

	assert.ErrorIs(t, s.AddTask(simjob.New("x", 1), "x"), ErrDuplicateJob)
	assert.ErrorIs(t, s.AddTask(simjob.New("y", 1), ""), ErrInvalidJob)
	assert.ErrorIs(t, s.AddTask(nil, "y"), ErrInvalidJob)
	assert.Equal(t, 1, s.Len())

	_, err := s.Job("nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.ErrorIs(t, s.MarkCompleted("nope"), ErrUnknownJob)
	assert.ErrorIs(t, s.MarkFailed("nope"), ErrUnknownJob)
}

func TestScheduler_Merge(t *testing.T) {
	t.Run("Collision", func(t *testing.T) {
		s1, s2 := New(), New()
		require.NoError(t, s1.AddTask(simjob.New("x", 1), "x"))
		require.NoError(t, s2.AddTask(simjob.New("x", 1), "x"))

		_, err := s1.Merge(s2)
		assert.ErrorIs(t, err, ErrDuplicateJob)
	})

	t.Run("Disjoint", func(t *testing.T) {
		s1, s2 := New(), New()
		for _, id := range []string{"a", "b"} {
			require.NoError(t, s1.AddTask(simjob.New(id, 1), id))
		}
		for _, id := range []string{"c", "d", "e"} {
			require.NoError(t, s2.AddTask(simjob.New(id, 1), id))
		}

		merged, err := s1.Merge(s2)
		require.NoError(t, err)
		assert.Equal(t, 5, merged.Len())
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(merged.Jobs()))

		// Jobs are shared between the schedulers.
		require.NoError(t, merged.MarkCompleted("c"))
		job, err := s2.Job("c")
		require.NoError(t, err)
		assert.True(t, job.Succeeded())
	})
}

func TestScheduler_StartAndRemoveAll(t *testing.T) {
	a := simjob.New("a", 1)
	b := simjob.Started("b", 1)
	c := simjob.New("c", 1)
	s := New()
	require.NoError(t, s.AddTask(a, "a"))
	require.NoError(t, s.AddTask(b, "b"))
	require.NoError(t, s.AddTask(c, "c", "a"))

	remotes, err := s.StartAndRemoveAll(context.Background())
	assert.ErrorIs(t, err, core.ErrAlreadyStarted)
	assert.Equal(t, []core.RemoteJob{a, b, c}, remotes)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, a.Starts())
	assert.Equal(t, 1, c.Starts())

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestScheduler_CancelAll(t *testing.T) {
	ctx := context.Background()
	a := simjob.New("a", 10, simjob.WithCancelError(errors.New("permission denied")))
	b := simjob.New("b", 10)
	s := New()
	require.NoError(t, s.AddTask(a, "a"))
	require.NoError(t, s.AddTask(b, "b"))
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	s.CancelAll(ctx)

	assert.Equal(t, core.StateReady, a.State())
	assert.Equal(t, core.StateCancelled, b.State())
	assert.Equal(t, []core.RemoteJob{a, b}, s.RemoteJobs())
}

type hookObserver struct {
	started func(job *Job)
}

func (o hookObserver) JobStarted(_ context.Context, job *Job) { o.started(job) }

func (hookObserver) JobFinished(context.Context, *Job) {}

func TestRun_PendingJobMarkedDuringRun(t *testing.T) {
	var s *Scheduler
	s = newTestScheduler(WithObserver(hookObserver{started: func(job *Job) {
		if job.ID() == "A" {
			assert.NoError(t, s.MarkCompleted("B"))
			assert.NoError(t, s.MarkFailed("C"))
		}
	}}))
	a := simjob.New("A", 1)
	b := simjob.New("B", 1)
	c := simjob.New("C", 1)
	d := simjob.New("D", 1)
	require.NoError(t, s.AddTask(a, "A"))
	require.NoError(t, s.AddTask(b, "B", "A"))
	require.NoError(t, s.AddTask(c, "C", "A"))
	require.NoError(t, s.AddTask(d, "D", "C"))

	jobs, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]Phase{
		"A": PhaseSucceeded,
		"B": PhaseSucceeded,
		"C": PhaseFailed,
		"D": PhaseFailed,
	}, phases(jobs))
	assert.Equal(t, 1, a.Starts())
	assert.Equal(t, 0, b.Starts())
	assert.Equal(t, 0, c.Starts())
	assert.Equal(t, 0, d.Starts())
}

func TestRun_AdoptAfterStatusError(t *testing.T) {
	rateLimited := errors.New("429 too many requests")
	s := newTestScheduler(WithMaxConcurrency(1))
	a := simjob.Started("A", 1, simjob.WithStatusErrors(3, rateLimited))
	b := simjob.New("B", 1)
	require.NoError(t, s.AddTask(a, "A"))
	require.NoError(t, s.AddTask(b, "B", "A"))

	jobs, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]Phase{
		"A": PhaseSucceeded,
		"B": PhaseSucceeded,
	}, phases(jobs))
	assert.Equal(t, 1, a.Starts())
	assert.Equal(t, 1, b.Starts())
}

func TestRun_StatusNeverAvailable(t *testing.T) {
	s := newTestScheduler(WithTimeout(50 * time.Millisecond))
	a := simjob.Started("A", 1, simjob.WithStatusError(errors.New("429 too many requests")))
	b := simjob.New("B", 1)
	require.NoError(t, s.AddTask(a, "A"))
	require.NoError(t, s.AddTask(b, "B", "A"))

	_, err := s.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, a.Starts())
	assert.Equal(t, 0, b.Starts())
	assert.Equal(t, PhasePending, s.jobs["A"].Phase())
}
