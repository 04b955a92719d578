package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/events"
)

func TestComputeStateAtReturnsLastStateBeforeN(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.WorkflowStartedPayload{WorkflowName: "triage"}),
		events.NewTypedEvent("sess_1", 1, events.StateUpdatedPayload{State: map[string]any{"phase": "start"}}),
		events.NewTypedEvent("sess_1", 2, events.StateUpdatedPayload{State: map[string]any{"phase": "plan"}}),
		events.NewTypedEvent("sess_1", 3, events.StateUpdatedPayload{State: map[string]any{"phase": "done"}}),
	}

	state := ComputeStateAt(log, 3)
	m, ok := state.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plan", m["phase"])

	assert.Nil(t, ComputeStateAt(log, 0))
}

func TestComputeTokenUsageSumsAcrossAgents(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.AgentUsagePayload{AgentName: "planner", InputTokens: 100, OutputTokens: 40}),
		events.NewTypedEvent("sess_1", 1, events.AgentUsagePayload{AgentName: "writer", InputTokens: 200, OutputTokens: 90}),
	}

	usage := ComputeTokenUsage(log)
	assert.Equal(t, 300, usage.Input)
	assert.Equal(t, 130, usage.Output)
}

func TestComputeTokenUsageEmptyLog(t *testing.T) {
	usage := ComputeTokenUsage(nil)
	assert.Equal(t, 0, usage.Input)
	assert.Equal(t, 0, usage.Output)
}

func TestComputeTitlePrefersLatest(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.SessionTitledPayload{Title: "first draft"}),
		events.NewTypedEvent("sess_1", 1, events.SessionTitledPayload{Title: "final title"}),
	}
	assert.Equal(t, "final title", ComputeTitle(log))
}

func TestComputeTitleEmptyWhenNeverTitled(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.WorkflowStartedPayload{WorkflowName: "triage"}),
	}
	assert.Equal(t, "", ComputeTitle(log))
}

func TestLastIncompleteStepPrefersOpenAgentOverPhase(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.PhaseStartPayload{Name: "plan"}),
		events.NewTypedEvent("sess_1", 1, events.AgentStartedPayload{AgentName: "planner"}),
	}

	tok, ok := LastIncompleteStep(log)
	require.True(t, ok)
	assert.Equal(t, "planner", tok.AgentName)
	assert.Equal(t, "plan", tok.PhaseName)
}

func TestLastIncompleteStepFallsBackToOpenPhase(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.PhaseStartPayload{Name: "plan"}),
		events.NewTypedEvent("sess_1", 1, events.AgentStartedPayload{AgentName: "planner"}),
		events.NewTypedEvent("sess_1", 2, events.AgentCompletedPayload{AgentName: "planner", Success: true}),
	}

	tok, ok := LastIncompleteStep(log)
	require.True(t, ok)
	assert.Equal(t, "plan", tok.PhaseName)
	assert.Empty(t, tok.AgentName)
}

func TestLastIncompleteStepNoneWhenEverythingClosed(t *testing.T) {
	log := []events.Event{
		events.NewTypedEvent("sess_1", 0, events.PhaseStartPayload{Name: "plan"}),
		events.NewTypedEvent("sess_1", 1, events.PhaseCompletePayload{Name: "plan"}),
	}

	_, ok := LastIncompleteStep(log)
	assert.False(t, ok)
}
