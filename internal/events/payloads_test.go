package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTypedEventSetsNameFromPayload(t *testing.T) {
	e := NewTypedEvent("sess_1", 3, AgentStartedPayload{AgentName: "planner"})
	assert.Equal(t, AgentStarted, e.Name)
	assert.Equal(t, "sess_1", e.SessionID)
	assert.Equal(t, 3, e.Position)
	assert.NotEmpty(t, e.ID)
}

func TestExtractPayloadRoundTripsThroughJSON(t *testing.T) {
	original := AgentToolStartPayload{
		AgentName: "planner",
		ToolID:    "call_1",
		ToolName:  "search",
		Input:     map[string]any{"query": "golang idioms"},
	}
	e := NewTypedEvent("sess_1", 0, original)

	// Simulate a replayed event whose Payload crossed a store boundary and
	// is now untyped JSON, not the concrete struct.
	e.Payload = map[string]any{
		"agent_name": "planner",
		"tool_id":    "call_1",
		"tool_name":  "search",
		"input":      map[string]any{"query": "golang idioms"},
	}

	got, ok := ExtractPayload[AgentToolStartPayload](e)
	require.True(t, ok)
	assert.Equal(t, original, got)
}

func TestSessionPromptAndReplyCarryCorrelationID(t *testing.T) {
	prompt := SessionPromptPayload{PromptID: "prompt_1", Prompt: "continue?", Choices: []string{"yes", "no"}}
	reply := SessionReplyPayload{PromptID: "prompt_1", Choice: "yes"}

	assert.Equal(t, SessionPrompt, prompt.EventName())
	assert.Equal(t, SessionReply, reply.EventName())
	assert.Equal(t, prompt.PromptID, reply.PromptID)
}

func TestAgentFailedPayloadReasonTaxonomy(t *testing.T) {
	p := AgentFailedPayload{AgentName: "planner", Reason: ReasonProviderError, Message: "rate limited"}
	assert.Equal(t, AgentFailed, p.EventName())
	assert.Equal(t, ReasonProviderError, p.Reason)
}
