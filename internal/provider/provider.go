package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is the AgentProvider contract every concrete model driver and
// the recording playback wrapper implement. Stream must respect ctx
// cancellation as the abort signal: once ctx is done, the driver stops
// emitting and closes the returned channel (spec §4.4).
type Provider interface {
	Name() string
	Stream(ctx context.Context, opts StreamOptions) (<-chan StreamEvent, error)
}

// ErrorCode classifies a provider failure the way the runtime's retry
// policy needs to distinguish them: only Transient and RateLimited are
// retried, Auth/ContextTooLong/ModelNotFound/Unknown are not.
type ErrorCode string

const (
	CodeAuth           ErrorCode = "AUTH"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeContextTooLong ErrorCode = "CONTEXT_TOO_LONG"
	CodeModelNotFound  ErrorCode = "MODEL_NOT_FOUND"
	CodeTransient      ErrorCode = "TRANSIENT"
	CodeUnknown        ErrorCode = "UNKNOWN"
)

// Retryable reports whether the runtime's backoff loop should retry a
// failure of this code.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeRateLimited, CodeTransient:
		return true
	default:
		return false
	}
}

// Error wraps a provider failure with the classification the runtime acts
// on, mirroring the teacher's substring-classified model errors but
// expressed as a typed code instead of a re-wrapped string.
type Error struct {
	Provider string
	Code     ErrorCode
	Cause    error
}

func (e *Error) Error() string {
	return "provider " + e.Provider + ": " + string(e.Code) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Classify converts a driver SDK error into a classified Error, using the
// same substring families the teacher's model error handling keys off of.
func Classify(providerName string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden"):
		return &Error{Provider: providerName, Code: CodeAuth, Cause: err}
	case containsAny(msg, "429", "rate limit", "quota", "too many requests"):
		return &Error{Provider: providerName, Code: CodeRateLimited, Cause: err}
	case containsAny(msg, "context length", "too many tokens", "max tokens", "token limit"):
		return &Error{Provider: providerName, Code: CodeContextTooLong, Cause: err}
	case containsAny(msg, "model not found", "404", "not found"):
		return &Error{Provider: providerName, Code: CodeModelNotFound, Cause: err}
	case containsAny(msg, "connection", "eof", "timeout", "dial", "refused"):
		return &Error{Provider: providerName, Code: CodeTransient, Cause: err}
	default:
		return &Error{Provider: providerName, Code: CodeUnknown, Cause: err}
	}
}

// AssembleResult builds the terminal Result payload (spec §4.4: "exactly
// one terminal Result per successful stream") every driver's pump emits
// once its turn ends. A final tool call is treated as the agent's
// structured action and takes priority; otherwise the full response text
// is parsed as a JSON object, falling back to a plain {"text": ...}
// wrapper when it isn't one. No outputSchema check happens here; the
// workflow runtime validates the decoded output before Update runs.
func AssembleResult(text string, toolArgsJSON json.RawMessage) json.RawMessage {
	var output map[string]any
	switch {
	case len(toolArgsJSON) > 0:
		if err := json.Unmarshal(toolArgsJSON, &output); err != nil {
			output = map[string]any{"text": text}
		}
	case text != "":
		if err := json.Unmarshal([]byte(text), &output); err != nil {
			output = map[string]any{"text": text}
		}
	default:
		output = map[string]any{}
	}

	data, err := json.Marshal(output)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
