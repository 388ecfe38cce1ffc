package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/id"
	"github.com/stretchr/testify/require"
)

func TestExecutionEvent_JSONTagging(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	runID := id.NewWorkflowRunID()

	ev := NodeCompleted(runID, "summarize", "obj_abc123", ts)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "node_completed", decoded["type"])
	require.Equal(t, "summarize", decoded["node_id"])
	require.Equal(t, "obj_abc123", decoded["output_key"])
	require.NotContains(t, decoded, "error")
	require.NotContains(t, decoded, "reason")
}

func TestExecutionEvent_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	runID := id.NewWorkflowRunID()
	workflowID := id.NewWorkflowID()
	triggerID := id.NewTriggerID()

	ev := RunQueued(runID, workflowID, &triggerID, json.RawMessage(`{"x":1}`), ts)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded ExecutionEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, ev, decoded)
}

func TestType_IsTerminal(t *testing.T) {
	require.True(t, TypeRunCompleted.IsTerminal())
	require.True(t, TypeRunFailed.IsTerminal())
	require.True(t, TypeRunCancelled.IsTerminal())
	require.False(t, TypeRunStarted.IsTerminal())
	require.False(t, TypeNodeCompleted.IsTerminal())
}

func TestNewEnvelope(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	ev := RunStarted(id.NewWorkflowRunID(), ts)
	env := NewEnvelope(ev)

	require.NotEmpty(t, env.ID)
	require.Equal(t, ev, env.Payload)
	require.Equal(t, ts, env.Timestamp)
}
