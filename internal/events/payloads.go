package events

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Payload is implemented by every typed event payload so NewTypedEvent can
// recover the event Name from the Go type.
type Payload interface {
	EventName() Name
}

// NewTypedEvent builds an Event of the kind dictated by payload's EventName.
func NewTypedEvent(sessionID string, position int, payload Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      payload.EventName(),
		Payload:   payload,
		Position:  position,
	}
}

// ExtractPayload decodes e.Payload into T by round-tripping through JSON,
// since a replayed Event's Payload is untyped (any) once it has crossed a
// store or wire boundary.
func ExtractPayload[T Payload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

// =============================================================================
// WORKFLOW
// =============================================================================

type WorkflowStartedPayload struct {
	WorkflowName string `json:"workflow_name"`
	Input        string `json:"input"`
}

func (WorkflowStartedPayload) EventName() Name { return WorkflowStarted }

type WorkflowCompletedPayload struct {
	Success    bool  `json:"success"`
	DurationMS int64 `json:"duration_ms"`
}

func (WorkflowCompletedPayload) EventName() Name { return WorkflowCompleted }

type WorkflowFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (WorkflowFailedPayload) EventName() Name { return WorkflowFailed }

// =============================================================================
// PHASE / TASK GROUPING
// =============================================================================

type PhaseStartPayload struct {
	Name   string `json:"name"`
	Number int    `json:"number,omitempty"`
}

func (PhaseStartPayload) EventName() Name { return PhaseStart }

type PhaseCompletePayload struct {
	Name   string `json:"name"`
	Number int    `json:"number,omitempty"`
}

func (PhaseCompletePayload) EventName() Name { return PhaseComplete }

type TaskStartPayload struct {
	Name string `json:"name"`
}

func (TaskStartPayload) EventName() Name { return TaskStart }

type TaskCompletePayload struct {
	Name string `json:"name"`
}

func (TaskCompletePayload) EventName() Name { return TaskComplete }

type TaskFailedPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (TaskFailedPayload) EventName() Name { return TaskFailed }

// =============================================================================
// AGENT
// =============================================================================

type AgentStartedPayload struct {
	AgentName string `json:"agent_name"`
}

func (AgentStartedPayload) EventName() Name { return AgentStarted }

type AgentThinkingPayload struct {
	AgentName string `json:"agent_name"`
	Delta     string `json:"delta"`
}

func (AgentThinkingPayload) EventName() Name { return AgentThinking }

type AgentTextPayload struct {
	AgentName string `json:"agent_name"`
	Delta     string `json:"delta"`
}

func (AgentTextPayload) EventName() Name { return AgentText }

type AgentToolStartPayload struct {
	AgentName string         `json:"agent_name"`
	ToolID    string         `json:"tool_id"`
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input,omitempty"`
}

func (AgentToolStartPayload) EventName() Name { return AgentToolStart }

type AgentToolCompletePayload struct {
	AgentName string `json:"agent_name"`
	ToolID    string `json:"tool_id"`
	Output    string `json:"output,omitempty"`
	IsError   bool   `json:"is_error"`
}

func (AgentToolCompletePayload) EventName() Name { return AgentToolComplete }

type AgentCompletedPayload struct {
	AgentName string         `json:"agent_name"`
	Success   bool           `json:"success"`
	Output    map[string]any `json:"output,omitempty"`
}

func (AgentCompletedPayload) EventName() Name { return AgentCompleted }

// AgentFailureReason classifies why an agent step failed, mirroring the
// ProviderError/validation split the runtime distinguishes on retry.
type AgentFailureReason string

const (
	ReasonValidationError AgentFailureReason = "VALIDATION_ERROR"
	ReasonProviderError   AgentFailureReason = "PROVIDER_ERROR"
)

type AgentFailedPayload struct {
	AgentName string             `json:"agent_name"`
	Reason    AgentFailureReason `json:"reason"`
	Message   string             `json:"message"`
	Path      string             `json:"path,omitempty"`
}

func (AgentFailedPayload) EventName() Name { return AgentFailed }

type AgentRetryPayload struct {
	AgentName string `json:"agent_name"`
	Attempt   int    `json:"attempt"`
	DelayMS   int64  `json:"delay_ms"`
	Reason    string `json:"reason"`
}

func (AgentRetryPayload) EventName() Name { return AgentRetry }

// AgentUsagePayload records one agent turn's token consumption, emitted
// whenever a provider's Stream reports a KindUsage event. Cumulative
// per-session usage is a fold over every AgentUsagePayload in the log
// (eventstore.ComputeTokenUsage), never a separately tracked counter.
type AgentUsagePayload struct {
	AgentName    string `json:"agent_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func (AgentUsagePayload) EventName() Name { return AgentUsage }

// =============================================================================
// STATE
// =============================================================================

// StateUpdatedPayload is the StateIntent: the full workflow state after a
// deterministic update (spec invariant E4). State is opaque to the event
// store and bus; the workflow package owns its shape and validation.
type StateUpdatedPayload struct {
	State any `json:"state"`
}

func (StateUpdatedPayload) EventName() Name { return StateUpdated }

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

type SessionPausedPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (SessionPausedPayload) EventName() Name { return SessionPaused }

type SessionResumedPayload struct{}

func (SessionResumedPayload) EventName() Name { return SessionResumed }

type SessionAbortedPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (SessionAbortedPayload) EventName() Name { return SessionAborted }

// SessionPromptPayload is AwaitInput: the workflow suspends pending a reply
// correlated by PromptID.
type SessionPromptPayload struct {
	PromptID string   `json:"prompt_id"`
	Prompt   string   `json:"prompt"`
	Choices  []string `json:"choices,omitempty"`
}

func (SessionPromptPayload) EventName() Name { return SessionPrompt }

// SessionReplyPayload is InputReceived: the external caller's answer to a
// SessionPromptPayload, correlated by PromptID.
type SessionReplyPayload struct {
	PromptID string `json:"prompt_id"`
	Content  string `json:"content,omitempty"`
	Choice   string `json:"choice,omitempty"`
}

func (SessionReplyPayload) EventName() Name { return SessionReply }

// SessionTitledPayload sets or changes a session's display label (spec
// [EXPANSION]: Session.Title). A session's title is whatever the latest
// SessionTitledPayload in its log says, the same last-write-wins rule
// GetState already applies to StateUpdatedPayload.
type SessionTitledPayload struct {
	Title string `json:"title"`
}

func (SessionTitledPayload) EventName() Name { return SessionTitled }

// =============================================================================
// NARRATIVE
// =============================================================================

type NarrativePayload struct {
	Importance Importance `json:"importance"`
	Message    string     `json:"message"`
}

func (NarrativePayload) EventName() Name { return Narrative }

// =============================================================================
// SCHEDULER
// =============================================================================

type ScheduleTriggeredPayload struct {
	EntryID      string `json:"entry_id"`
	EntryTitle   string `json:"entry_title,omitempty"`
	WorkflowName string `json:"workflow_name"`
	SessionID    string `json:"session_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ScheduleTriggeredPayload) EventName() Name { return ScheduleTriggered }
