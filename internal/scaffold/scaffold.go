// Package scaffold is the composition root for one running process (spec
// §4.7 SessionManager): it owns every store, the event bus, the provider
// registry, and the workflow Runtime, and exposes the session lifecycle
// operations a Hub/Transport talks to. Modeled on cmd/commands/gateway.go's
// wiring, but generalized from "build one gateway server" to "own the
// stores and expose session operations a transport-agnostic Hub can call."
package scaffold

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/open-harness/loom/internal/apperrors"
	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/provider"
	"github.com/open-harness/loom/internal/provider/recording"
	"github.com/open-harness/loom/internal/recorder"
	"github.com/open-harness/loom/internal/workflow"
)

// Config configures one Scaffold instance: where providers are configured
// and whether this process runs live or replays recordings.
//
// Invariant S1: Mode is fixed for the Scaffold's entire lifetime. It is
// read once in NewScaffold and never consulted again; there is no setter.
type Config struct {
	Mode             recording.Mode
	Providers        map[string]provider.Config
	DefaultProvider  string
	EventHistorySize int
}

// Status summarizes a session's lifecycle state without requiring the
// caller to interpret the raw event log.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusAborted   Status = "aborted"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Scaffold owns the stores, bus, provider resolution and workflow Runtime
// for a process, and is the thing a Hub calls into for every session
// operation.
type Scaffold struct {
	store     eventstore.Store
	snapshots eventstore.SnapshotStore
	recorder  recorder.Recorder
	bus       *events.Bus
	runtime   *workflow.Runtime
	mode      recording.Mode

	mu          sync.RWMutex
	definitions map[string]*workflow.Definition

	resolverMu sync.Mutex
	resolved   map[string]provider.Provider
	base       *provider.Registry
}

// NewScaffold wires a Scaffold from its stores. The recorder is required
// in every mode: ModeLive uses it to capture traffic for later playback,
// ModePlayback uses it as the sole source of agent output.
func NewScaffold(cfg Config, store eventstore.Store, snapshots eventstore.SnapshotStore, rec recorder.Recorder) *Scaffold {
	if cfg.Mode == "" {
		cfg.Mode = recording.ModeLive
	}

	s := &Scaffold{
		store:       store,
		snapshots:   snapshots,
		recorder:    rec,
		bus:         events.NewBus(cfg.EventHistorySize),
		mode:        cfg.Mode,
		definitions: make(map[string]*workflow.Definition),
		resolved:    make(map[string]provider.Provider),
		base:        provider.NewRegistry(cfg.DefaultProvider, cfg.Providers),
	}
	s.runtime = workflow.NewRuntime(store, s.bus, s)
	return s
}

// Get resolves name to a recording-aware Provider, satisfying
// workflow.ProviderResolver. Every provider this Scaffold ever hands out
// is wrapped the same way (invariant S1): in ModeLive it's the live
// provider wrapped to record, in ModePlayback it never touches a live
// driver at all. Resolution happens at most once per name per process,
// mirroring the teacher's registry's sync.Once lazy-init idiom.
func (s *Scaffold) Get(ctx context.Context, name string) (provider.Provider, error) {
	s.resolverMu.Lock()
	defer s.resolverMu.Unlock()

	if p, ok := s.resolved[name]; ok {
		return p, nil
	}

	var live provider.Provider
	if s.mode == recording.ModeLive {
		p, err := s.base.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		live = p
	}

	wrapped := recording.NewWrapper(s.mode, live, s.recorder)
	s.resolved[name] = wrapped
	return wrapped, nil
}

// Bus exposes the event bus so a Hub can subscribe to sessions.
func (s *Scaffold) Bus() *events.Bus { return s.bus }

// Publish appends payload as the next event for sessionID and publishes it
// on the bus, for callers outside the workflow Runtime itself — a Hub
// recording an inbound session:prompt/session:reply correlation is the
// motivating case.
func (s *Scaffold) Publish(ctx context.Context, sessionID string, payload events.Payload) (events.Event, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	pos := 0
	if err == nil {
		pos = len(log)
	}
	e := events.NewTypedEvent(sessionID, pos, payload)
	stored, err := s.store.Append(ctx, sessionID, e)
	if err != nil {
		return events.Event{}, err
	}
	s.bus.Publish(stored)
	return stored, nil
}

// RegisterDefinition makes def available to CreateSession/Resume under
// def.Name, after validating it statically (invariant W1).
func (s *Scaffold) RegisterDefinition(def *workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("scaffold: register %s: %w", def.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.Name] = def
	return nil
}

func (s *Scaffold) definition(name string) (*workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[name]
	if !ok {
		return nil, apperrors.NewWorkflowNotFound(name)
	}
	return def, nil
}

// CreateSession starts workflowName fresh under a new session ID and
// returns it immediately; the run itself proceeds on a detached
// goroutine, the same fire-and-forget shape the teacher's actor pool and
// event runner use for long-running agent turns. Callers observe progress
// by subscribing to Bus() or polling GetStatus/GetState.
func (s *Scaffold) CreateSession(ctx context.Context, workflowName, input string) (string, error) {
	def, err := s.definition(workflowName)
	if err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	s.runAsync(sessionID, func(runCtx context.Context) error {
		return s.runtime.Execute(runCtx, sessionID, def, input)
	})
	return sessionID, nil
}

// Resume restarts sessionID's last incomplete step. The workflow name is
// recovered from the session's own workflow:started event: the event log
// is authoritative, never a cached row.
func (s *Scaffold) Resume(ctx context.Context, sessionID string) error {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return err
	}

	var workflowName string
	for _, e := range log {
		if p, ok := events.ExtractPayload[events.WorkflowStartedPayload](e); ok {
			workflowName = p.WorkflowName
			break
		}
	}
	if workflowName == "" {
		return fmt.Errorf("scaffold: session %s has no workflow:started event to resume from", sessionID)
	}

	def, err := s.definition(workflowName)
	if err != nil {
		return err
	}

	s.runAsync(sessionID, func(runCtx context.Context) error {
		return s.runtime.Resume(runCtx, sessionID, def)
	})
	return nil
}

// Pause cooperatively cancels sessionID's in-flight run.
func (s *Scaffold) Pause(ctx context.Context, sessionID, reason string) error {
	return s.runtime.Pause(ctx, sessionID, reason)
}

// Abort cancels sessionID's in-flight run and marks it terminally aborted.
func (s *Scaffold) Abort(ctx context.Context, sessionID, reason string) error {
	return s.runtime.Abort(ctx, sessionID, reason)
}

// GetStatus derives a session's lifecycle Status from its event log, the
// log being authoritative over any cached row.
func (s *Scaffold) GetStatus(ctx context.Context, sessionID string) (Status, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return StatusUnknown, err
	}
	if len(log) == 0 {
		return StatusUnknown, apperrors.NewSessionNotFound(sessionID)
	}

	for i := len(log) - 1; i >= 0; i-- {
		switch log[i].Name {
		case events.WorkflowCompleted:
			return StatusCompleted, nil
		case events.WorkflowFailed:
			return StatusFailed, nil
		case events.SessionAborted:
			return StatusAborted, nil
		case events.SessionPaused:
			return StatusPaused, nil
		case events.SessionResumed, events.WorkflowStarted:
			return StatusRunning, nil
		}
	}
	return StatusUnknown, nil
}

// GetState returns the session's current reduced state, preferring a
// snapshot to replaying from the beginning when one is available and
// still current.
func (s *Scaffold) GetState(ctx context.Context, sessionID string) (any, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(log) == 0 {
		return nil, apperrors.NewSessionNotFound(sessionID)
	}

	if s.snapshots != nil {
		if snap, ok, err := s.snapshots.GetLatest(ctx, sessionID); err == nil && ok && snap.Position <= len(log) {
			rest := log[snap.Position:]
			if len(rest) == 0 {
				return snap.State, nil
			}
		}
	}

	return eventstore.ComputeStateAt(log, len(log)), nil
}

// GetTokenUsage returns sessionID's cumulative token consumption, folded
// from its event log (spec [EXPANSION]: Session.TokenUsage).
func (s *Scaffold) GetTokenUsage(ctx context.Context, sessionID string) (eventstore.TokenUsage, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return eventstore.TokenUsage{}, err
	}
	return eventstore.ComputeTokenUsage(log), nil
}

// GetTitle returns sessionID's current display label, or "" if it was never
// titled (spec [EXPANSION]: Session.Title).
func (s *Scaffold) GetTitle(ctx context.Context, sessionID string) (string, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return eventstore.ComputeTitle(log), nil
}

// SetTitle records a session:titled event setting sessionID's display label.
func (s *Scaffold) SetTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.Publish(ctx, sessionID, events.SessionTitledPayload{Title: title})
	return err
}

// ListSessions returns every session ID with at least one event.
func (s *Scaffold) ListSessions(ctx context.Context) ([]string, error) {
	return s.store.ListSessions(ctx)
}

// DeleteSession removes a session's event log and any cached snapshot.
func (s *Scaffold) DeleteSession(ctx context.Context, sessionID string) error {
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			return err
		}
	}
	return s.store.DeleteSession(ctx, sessionID)
}

// Fork copies sessionID's entire event log onto a new session ID, letting
// the caller branch exploration from the session's current point without
// re-running a single agent turn. The copy is a distinct session
// from creation onward: appends to one never affect the other.
func (s *Scaffold) Fork(ctx context.Context, sessionID string) (string, error) {
	log, err := s.store.GetEvents(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(log) == 0 {
		return "", apperrors.NewSessionNotFound(sessionID)
	}

	forkID := uuid.NewString()
	for _, e := range log {
		copy := e
		copy.ID = uuid.NewString()
		copy.SessionID = forkID
		if _, err := s.store.Append(ctx, forkID, copy); err != nil {
			return "", fmt.Errorf("scaffold: fork %s: %w", sessionID, err)
		}
	}
	return forkID, nil
}

// runAsync runs fn on a detached context carrying no deadline from the
// caller's request, so a session outlives the HTTP/WS request that
// started it, logging any failure the way the teacher's pool workers log
// a failed task rather than propagating it to a caller who already moved
// on.
func (s *Scaffold) runAsync(sessionID string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			slog.Error("scaffold: session run failed", "session_id", sessionID, "error", err)
		}
	}()
}

var _ workflow.ProviderResolver = (*Scaffold)(nil)
