package cmd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	fake := newFakePlatform(t)
	fake.add("projects/p/operations/ACTIVE", "RUNNING")
	fake.add("projects/p/operations/QUEUED", "PENDING")
	fake.add("projects/p/operations/DONE", "SUCCEEDED")

	out, err := execute(t, "status", "--project", "p")
	require.NoError(t, err)
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "QUEUED")
	assert.NotContains(t, out, "DONE")

	out, err = execute(t, "status", "--project", "p", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "DONE")
	assert.Contains(t, out, "COMPLETED")
}

func TestCancelCommand(t *testing.T) {
	fake := newFakePlatform(t)
	fake.add("projects/p/operations/ACTIVE", "RUNNING")
	fake.add("projects/p/operations/DONE", "SUCCEEDED")

	out, err := execute(t, "cancel", "--project", "p")
	require.NoError(t, err)
	assert.Contains(t, out, "Requested cancellation of 1 operations")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"projects/p/operations/ACTIVE"}, fake.cancelled)
}

func TestWaitCommand(t *testing.T) {
	fake := newFakePlatform(t)
	fake.add("projects/p/operations/A", "RUNNING", "RUNNING", "SUCCEEDED")
	fake.add("projects/p/operations/B", "PENDING", "FAILED")

	out, err := execute(t, "wait", "--project", "p", "--poll-interval", "1ms", "--max-poll-interval", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "No active operations")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
