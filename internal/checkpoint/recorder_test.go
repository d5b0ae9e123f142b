package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/geetools/exportsched/internal/scheduler"
	"github.com/geetools/exportsched/internal/simjob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderAndResume(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	build := func(opts ...scheduler.Option) (*scheduler.Scheduler, map[string]*simjob.Job) {
		jobs := map[string]*simjob.Job{
			"a": simjob.New("a", 1),
			"b": simjob.New("b", 1, simjob.WithFailure()),
			"c": simjob.New("c", 1),
		}
		s := scheduler.New(append([]scheduler.Option{scheduler.WithPollInterval(time.Millisecond)}, opts...)...)
		require.NoError(t, s.AddTask(jobs["a"], "a"))
		require.NoError(t, s.AddTask(jobs["b"], "b"))
		require.NoError(t, s.AddTask(jobs["c"], "c", "a"))
		return s, jobs
	}

	s, _ := build(scheduler.WithObserver(NewRecorder(store, "nightly")))
	_, err = s.Run(ctx)
	require.NoError(t, err)

	ids, err := store.Completed(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	require.NoError(t, store.MarkCompleted(ctx, "nightly", "gone"))

	resumed, jobs := build()
	applied, err := Resume(ctx, store, "nightly", resumed)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, applied)

	_, err = resumed.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, jobs["a"].Starts())
	assert.Equal(t, 0, jobs["c"].Starts())
	assert.Equal(t, 1, jobs["b"].Starts())
}
