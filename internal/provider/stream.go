// Package provider defines the AgentProvider streaming contract (spec
// §4.4): a tagged union of stream events every concrete model driver emits
// in the same order, live or replayed from a recording.
package provider

import "encoding/json"

// StreamEventKind tags which variant of AgentStreamEvent is populated.
type StreamEventKind string

const (
	KindSessionInit      StreamEventKind = "session_init"
	KindTextDelta        StreamEventKind = "text_delta"
	KindTextComplete     StreamEventKind = "text_complete"
	KindThinkingDelta    StreamEventKind = "thinking_delta"
	KindThinkingComplete StreamEventKind = "thinking_complete"
	KindToolCall         StreamEventKind = "tool_call"
	KindToolResult       StreamEventKind = "tool_result"
	KindUsage            StreamEventKind = "usage"
	KindStop             StreamEventKind = "stop"
	KindResult           StreamEventKind = "result"
)

// StreamEvent is the tagged union an AgentProvider emits, one value per
// Kind. Ordering rule (spec §4.4): SessionInit first, Stop/Result last.
// The drivers in this package emit ToolCall events but no ToolResult
// events.
type StreamEvent struct {
	Kind StreamEventKind `json:"kind"`

	// TextDelta / TextComplete
	Text string `json:"text,omitempty"`

	// ThinkingDelta / ThinkingComplete
	Thinking string `json:"thinking,omitempty"`

	// ToolCall
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolArgsJSON json.RawMessage `json:"tool_args,omitempty"`

	// ToolResult
	ToolResult  string `json:"tool_result,omitempty"`
	ToolIsError bool   `json:"tool_is_error,omitempty"`

	// Usage
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`

	// SessionInit
	ProviderSessionID string `json:"provider_session_id,omitempty"`

	// Stop
	StopReason string `json:"stop_reason,omitempty"`

	// Result carries the turn's final structured output as a JSON object
	// (see AssembleResult); it is not checked against the output schema.
	Result json.RawMessage `json:"result,omitempty"`
}

// Tool describes one callable tool offered to the model for this turn.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// StreamOptions is everything a Provider.Stream call needs beyond the
// prompt text: the tool set, the schema the final Result must satisfy, and
// provider-specific tuning.
type StreamOptions struct {
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Prompt         string            `json:"prompt"`
	Tools          []Tool            `json:"tools,omitempty"`
	OutputSchema   json.RawMessage   `json:"output_schema,omitempty"`
	ProviderConfig map[string]string `json:"provider_config,omitempty"`
}
