// Package eventstore persists a session's append-only event log and the
// snapshot of workflow state computed from it, and replays that log back
// into state via a deterministic reducer.
package eventstore

import (
	"context"
	"fmt"

	"github.com/open-harness/loom/internal/events"
)

// StoreError wraps a failure from a Store operation with the operation name
// and the underlying cause, mirroring the teacher's practice of always
// naming the failing operation rather than surfacing a bare driver error.
type StoreError struct {
	Operation string
	SessionID string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("eventstore: %s (session %s): %v", e.Operation, e.SessionID, e.Cause)
	}
	return fmt.Sprintf("eventstore: %s: %v", e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func wrapErr(op, sessionID string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{Operation: op, SessionID: sessionID, Cause: cause}
}

// ErrSessionNotFound names the condition of a session having no event log
// at all. FileStore and SQLStore do not return it: they answer an unknown
// session with an empty log and a nil error.
var ErrSessionNotFound = fmt.Errorf("session not found")

// Store is the durable, position-indexed event log for every session
// (spec §4.1). Append assigns the next Position; GetEvents(From) replay in
// that order. Implementations must make Append durable before returning.
type Store interface {
	// Append assigns e.Position as one past the session's current last
	// position, persists it, and returns the stored copy.
	Append(ctx context.Context, sessionID string, e events.Event) (events.Event, error)

	// GetEvents returns every event for sessionID in position order.
	GetEvents(ctx context.Context, sessionID string) ([]events.Event, error)

	// GetEventsFrom returns every event at or after fromPosition, in order.
	GetEventsFrom(ctx context.Context, sessionID string, fromPosition int) ([]events.Event, error)

	// ListSessions returns every session ID with at least one event.
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteSession removes a session's entire event log.
	DeleteSession(ctx context.Context, sessionID string) error
}

// SnapshotStore persists point-in-time StateSnapshots so a long session
// doesn't have to replay its full event log on every read (spec §3,
// StateSnapshot). It is an optimization cache, never authoritative: the
// event log itself is always the source of truth.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, snap Snapshot) error
	GetLatest(ctx context.Context, sessionID string) (Snapshot, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// Snapshot is a cached reduction of a session's event log up to Position.
type Snapshot struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
	State     any    `json:"state"`
}
