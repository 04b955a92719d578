// Package apperrors defines the typed error kinds spec §7 names
// (SessionNotFound, WorkflowNotFound, ValidationError, RecordingNotFound,
// HandlerError), mirroring provider.Error's Code/Cause/Error()/Unwrap()
// shape so the HTTP transport can map them to status codes by type instead
// of by sniffing error strings.
package apperrors

import "fmt"

// SessionNotFoundError reports that a session ID has no event log.
type SessionNotFoundError struct {
	SessionID string
}

func NewSessionNotFound(sessionID string) *SessionNotFoundError {
	return &SessionNotFoundError{SessionID: sessionID}
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// WorkflowNotFoundError reports that a workflow name has no registered
// Definition.
type WorkflowNotFoundError struct {
	WorkflowName string
}

func NewWorkflowNotFound(name string) *WorkflowNotFoundError {
	return &WorkflowNotFoundError{WorkflowName: name}
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: %s", e.WorkflowName)
}

// ValidationError reports that an agent's decoded output failed its
// outputSchema check (spec §4.6 output validation).
type ValidationError struct {
	Message string
	Path    string
}

func NewValidationError(message, path string) *ValidationError {
	return &ValidationError{Message: message, Path: path}
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("validation error at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// RecordingNotFoundError reports a playback-mode miss: no recording exists
// for hash (spec §4.3 playback semantics).
type RecordingNotFoundError struct {
	Hash       string
	PromptHead string
}

func NewRecordingNotFound(hash, promptHead string) *RecordingNotFoundError {
	return &RecordingNotFoundError{Hash: hash, PromptHead: promptHead}
}

func (e *RecordingNotFoundError) Error() string {
	return fmt.Sprintf("recording not found for hash %s (prompt: %q)", e.Hash, e.PromptHead)
}

// HandlerError reports that a Hub subscriber's listener callback panicked
// or failed. It is diagnostic only: producers are never blocked or
// affected by a broken subscriber (spec §7).
type HandlerError struct {
	Handler string
	Event   string
	Cause   error
}

func NewHandlerError(handler, event string, cause error) *HandlerError {
	return &HandlerError{Handler: handler, Event: event, Cause: cause}
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on event %s: %v", e.Handler, e.Event, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }
