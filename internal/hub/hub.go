// Package hub implements the Hub/Transport boundary contract: a single,
// transport-agnostic surface a Scaffold sits behind, and the shape any
// concrete transport (HTTP/SSE, WebSocket, in-process test harness) wires
// its wire protocol onto. Generalized from internal/gateway/ws/hub.go's
// WebSocket-specific client registry and method dispatch into something
// that knows nothing about WebSocket frames, chi routes, or any other
// wire format — only about sessions, filters, and events.
package hub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/open-harness/loom/internal/apperrors"
	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/scaffold"
)

// Listener receives events delivered by a Subscribe call.
type Listener func(events.Event)

// Hub is the boundary a transport talks to: outbound Subscribe delivers
// events to a listener, inbound Send/SendTo/Reply/Abort mutate session
// state. Hub itself holds no per-connection state — that belongs to the
// transport (e.g. one *Client per WebSocket connection, one http.Flusher
// per SSE request).
type Hub struct {
	scaffold *scaffold.Scaffold
}

// New builds a Hub in front of a Scaffold.
func New(s *scaffold.Scaffold) *Hub {
	return &Hub{scaffold: s}
}

// Transport is a factory that wires a concrete protocol onto a Hub and
// returns a cleanup func to run at shutdown, mirroring the teacher's
// server.Shutdown/hub.Close pairing but generalized so any number of
// transports can share one Hub.
type Transport func(h *Hub) (cleanup func(), err error)

// Subscribe delivers every event matching filter for sessionID ("" means
// every session) to listener on its own goroutine until unsubscribed,
// reusing events.Bus's Filter semantics directly so a transport never has
// to reimplement name matching.
func (h *Hub) Subscribe(sessionID string, filter events.Filter, listener Listener) (unsubscribe func()) {
	ch, unsub := h.scaffold.Bus().Subscribe(sessionID, filter)
	go func() {
		for e := range ch {
			dispatch(listener, e)
		}
	}()
	return unsub
}

// dispatch invokes listener for e, recovering a panic into a logged
// apperrors.HandlerError instead of letting a broken subscriber crash its
// delivery goroutine or affect any other subscriber (spec §7: a handler
// failure is diagnostic only, producers are never blocked by it).
func dispatch(listener Listener, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.NewHandlerError("listener", string(e.Name), fmt.Errorf("%v", r))
			slog.Error("hub: subscriber panicked", "error", err)
		}
	}()
	listener(e)
}

// Send is the inbound "start" operation: create a new session running
// workflowName with input, returning the new session ID.
func (h *Hub) Send(ctx context.Context, workflowName, input string) (string, error) {
	return h.scaffold.CreateSession(ctx, workflowName, input)
}

// SendTo records a session:prompt for sessionID carrying a fresh PromptID
// and returns it, the correlation token a later Reply call must echo back.
// It models an external actor (not the workflow's own agent loop) posing a
// question to whoever is watching the session — a human operator steering
// a run, or a supervising transport injecting guidance mid-workflow.
func (h *Hub) SendTo(ctx context.Context, sessionID, prompt string, choices []string) (promptID string, err error) {
	promptID = uuid.NewString()
	_, err = h.scaffold.Publish(ctx, sessionID, events.SessionPromptPayload{
		PromptID: promptID,
		Prompt:   prompt,
		Choices:  choices,
	})
	return promptID, err
}

// Reply answers an outstanding SessionPrompt, recorded as a session:reply
// event correlated by promptID. The Hub does not itself verify promptID
// matches an open prompt — a workflow waiting in an AwaitInput phase only
// accepts the reply whose prompt_id matches its own prompt (see
// workflow.Runtime's awaitReply), keeping Hub itself a thin, stateless
// relay.
func (h *Hub) Reply(ctx context.Context, sessionID, promptID, content, choice string) error {
	_, err := h.scaffold.Publish(ctx, sessionID, events.SessionReplyPayload{
		PromptID: promptID,
		Content:  content,
		Choice:   choice,
	})
	return err
}

// Abort cancels sessionID's in-flight run and records it as terminally
// aborted.
func (h *Hub) Abort(ctx context.Context, sessionID, reason string) error {
	return h.scaffold.Abort(ctx, sessionID, reason)
}

// Pause cooperatively cancels sessionID's in-flight run without marking it
// terminal; Resume on the underlying Scaffold continues it later.
func (h *Hub) Pause(ctx context.Context, sessionID, reason string) error {
	return h.scaffold.Pause(ctx, sessionID, reason)
}

// Resume restarts sessionID's last incomplete step.
func (h *Hub) Resume(ctx context.Context, sessionID string) error {
	return h.scaffold.Resume(ctx, sessionID)
}

// Status returns sessionID's current lifecycle status.
func (h *Hub) Status(ctx context.Context, sessionID string) (scaffold.Status, error) {
	return h.scaffold.GetStatus(ctx, sessionID)
}

// State returns sessionID's current reduced workflow state.
func (h *Hub) State(ctx context.Context, sessionID string) (any, error) {
	return h.scaffold.GetState(ctx, sessionID)
}

// Fork branches sessionID's entire history onto a new session ID.
func (h *Hub) Fork(ctx context.Context, sessionID string) (string, error) {
	return h.scaffold.Fork(ctx, sessionID)
}

// TokenUsage returns sessionID's cumulative token consumption.
func (h *Hub) TokenUsage(ctx context.Context, sessionID string) (eventstore.TokenUsage, error) {
	return h.scaffold.GetTokenUsage(ctx, sessionID)
}

// Title returns sessionID's current display label.
func (h *Hub) Title(ctx context.Context, sessionID string) (string, error) {
	return h.scaffold.GetTitle(ctx, sessionID)
}

// SetTitle sets sessionID's display label.
func (h *Hub) SetTitle(ctx context.Context, sessionID, title string) error {
	return h.scaffold.SetTitle(ctx, sessionID, title)
}

// History returns up to limit of the Hub's most recently published
// events across every session, for a transport seeding a newly-opened
// observability view the way internal/gateway/ws/hub.go's broadcast path
// does implicitly through its own live subscription.
func (h *Hub) History(limit int) []events.Event {
	return h.scaffold.Bus().History(limit)
}

// Serve runs every transport against h, returning a single cleanup that
// tears all of them down in reverse order. If any transport fails to
// start, the ones already started are cleaned up before the error is
// returned, mirroring the teacher's defer-per-resource shutdown style in
// cmd/commands/gateway.go collapsed into one call for an arbitrary set of
// transports.
func Serve(h *Hub, transports ...Transport) (cleanup func(), err error) {
	var cleanups []func()
	teardown := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	for _, t := range transports {
		c, err := t(h)
		if err != nil {
			teardown()
			return nil, fmt.Errorf("hub: start transport: %w", err)
		}
		cleanups = append(cleanups, c)
	}

	return teardown, nil
}
