package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
		failure  bool
		active   bool
	}{
		{StateUnsubmitted, "UNSUBMITTED", false, false, false},
		{StateReady, "READY", false, false, true},
		{StateRunning, "RUNNING", false, false, true},
		{StateCompleted, "COMPLETED", true, false, false},
		{StateFailed, "FAILED", true, true, false},
		{StateCancelRequested, "CANCEL_REQUESTED", true, true, false},
		{StateCancelled, "CANCELLED", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
			assert.Equal(t, tt.failure, tt.state.IsFailure())
			assert.Equal(t, tt.active, tt.state.IsActive())

			parsed, err := ParseState(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.state, parsed)
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState(" cancel_requested ")
	require.NoError(t, err)
	assert.Equal(t, StateCancelRequested, s)

	_, err = ParseState("PAUSED")
	assert.ErrorIs(t, err, ErrUnknownState)

	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestState_JSON(t *testing.T) {
	type wrapper struct {
		State State `json:"state"`
	}

	data, err := json.Marshal(wrapper{State: StateRunning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"RUNNING"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"state":"COMPLETED"}`), &w))
	assert.Equal(t, StateCompleted, w.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"nope"}`), &w))
}
