// Package events provides an in-memory, per-session publish/subscribe bus for
// workflow lifecycle events, plus the canonical event name enumeration and wire
// payload types shared by the event store, the workflow runtime, and transports.
package events

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Name is one of the fixed enumeration of event kinds a session can emit.
type Name string

const (
	WorkflowStarted   Name = "workflow:started"
	WorkflowCompleted Name = "workflow:completed"
	WorkflowFailed    Name = "workflow:failed"

	PhaseStart    Name = "phase:start"
	PhaseComplete Name = "phase:complete"

	TaskStart    Name = "task:start"
	TaskComplete Name = "task:complete"
	TaskFailed   Name = "task:failed"

	AgentStarted      Name = "agent:started"
	AgentThinking     Name = "agent:thinking"
	AgentText         Name = "agent:text"
	AgentToolStart    Name = "agent:tool:start"
	AgentToolComplete Name = "agent:tool:complete"
	AgentCompleted    Name = "agent:completed"
	AgentFailed       Name = "agent:failed"
	AgentRetry        Name = "agent:retry"
	AgentUsage        Name = "agent:usage"

	// StateUpdated carries the StateIntent: the full workflow state after a
	// deterministic update. It is the reducer's record (spec invariant E4).
	StateUpdated Name = "state:updated"

	SessionPaused  Name = "session:paused"
	SessionResumed Name = "session:resumed"
	SessionAborted Name = "session:aborted"
	SessionPrompt  Name = "session:prompt"
	SessionReply   Name = "session:reply"
	SessionTitled  Name = "session:titled"

	Narrative Name = "narrative"

	// ScheduleTriggered marks that a scheduler entry fired and started (or
	// attempted to start) a new session. Published on the bus only; it is
	// never appended to the triggered session's own event log.
	ScheduleTriggered Name = "schedule:triggered"

	// SubscriberOverflow is a synthetic terminal event delivered only to a
	// subscriber whose buffer overflowed; it is never appended to the store.
	SubscriberOverflow Name = "subscriber:overflow"
)

// Importance classifies a Narrative event's significance to an observer.
type Importance string

const (
	ImportanceCritical  Importance = "critical"
	ImportanceImportant Importance = "important"
	ImportanceDetailed  Importance = "detailed"
)

// Event is a single discrete, immutable thing that happened in a session.
// It serialises to the wire format in spec §6.1.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Name      Name      `json:"name"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Position  int       `json:"position"`
}

// ResumeToken locates the step a paused or crashed session should retry:
// the last phase/agent step that started without a matching completion.
type ResumeToken struct {
	PhaseName string `json:"phase,omitempty"`
	AgentName string `json:"agent,omitempty"`
	Position  int    `json:"position"`
}

// EncodeResumeToken creates an opaque string token for logging/debugging.
func EncodeResumeToken(t ResumeToken) string {
	data, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeResumeToken parses a token produced by EncodeResumeToken.
func DecodeResumeToken(tokenStr string) (ResumeToken, error) {
	var t ResumeToken
	data, err := base64.RawURLEncoding.DecodeString(tokenStr)
	if err != nil {
		return t, err
	}
	err = json.Unmarshal(data, &t)
	return t, err
}
