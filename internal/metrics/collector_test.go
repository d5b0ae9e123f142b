package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geetools/exportsched/internal/scheduler"
	"github.com/geetools/exportsched/internal/simjob"
)

func TestCollector_Run(t *testing.T) {
	c := NewCollector()
	s := scheduler.New(scheduler.WithPollInterval(time.Millisecond), scheduler.WithObserver(c))
	require.NoError(t, s.AddTask(simjob.New("a", 1), "a"))
	require.NoError(t, s.AddTask(simjob.New("b", 2, simjob.WithFailure()), "b"))
	require.NoError(t, s.AddTask(simjob.New("c", 1), "c", "b"))
	require.NoError(t, s.AddTask(simjob.New("d", 1, simjob.WithStartError(errors.New("quota"))), "d"))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.started))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues(ResultSucceeded)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.finished.WithLabelValues(ResultFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
}

func TestCollector_Export(t *testing.T) {
	c := NewCollector()
	expected := `
# HELP exportsched_jobs_finished_total Jobs that reached a terminal state, by result
# TYPE exportsched_jobs_finished_total counter
exportsched_jobs_finished_total{result="failed"} 0
exportsched_jobs_finished_total{result="succeeded"} 0
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "exportsched_jobs_finished_total"))
}

func TestServer(t *testing.T) {
	c := NewCollector()
	srv, err := Listen("127.0.0.1:0", c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "exportsched_jobs_in_flight")
	assert.Contains(t, body, "exportsched_info")
	assert.Contains(t, body, "go_build_info")
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
