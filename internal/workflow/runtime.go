package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-harness/loom/internal/apperrors"
	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/provider"
)

// ProviderResolver resolves a configured provider name to a live Provider.
// *provider.Registry satisfies this directly; a Scaffold substitutes its
// own resolver to enforce invariant S1 (live/playback mode fixed once per
// process) by handing back recording-wrapped providers instead.
type ProviderResolver interface {
	Get(ctx context.Context, name string) (provider.Provider, error)
}

// Runtime drives a Definition's phases for one session against an
// eventstore.Store and events.Bus, resolving which provider to call
// through a ProviderResolver. One Runtime instance serves many sessions
// concurrently; per-session state lives only in the event log.
type Runtime struct {
	store    eventstore.Store
	bus      *events.Bus
	registry ProviderResolver

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // sessionID -> in-flight run's cancel
}

// NewRuntime builds a Runtime backed by store/bus/registry.
func NewRuntime(store eventstore.Store, bus *events.Bus, registry ProviderResolver) *Runtime {
	return &Runtime{
		store:    store,
		bus:      bus,
		registry: registry,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Execute starts def fresh for sessionID with the given input, running
// until the workflow reaches a terminal phase, is paused, is aborted, or
// suspends awaiting input.
func (r *Runtime) Execute(ctx context.Context, sessionID string, def *Definition, input string) error {
	if err := def.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.setCancel(sessionID, cancel)
	defer r.clearCancel(sessionID)

	if _, err := r.append(runCtx, sessionID, events.WorkflowStartedPayload{WorkflowName: def.Name, Input: input}); err != nil {
		return err
	}
	if _, err := r.append(runCtx, sessionID, events.StateUpdatedPayload{State: def.InitialState}); err != nil {
		return err
	}

	return r.run(runCtx, sessionID, def, def.Start)
}

// Resume replays sessionID's event log, locates the last incomplete
// phase/agent step via eventstore.LastIncompleteStep, and retries it.
func (r *Runtime) Resume(ctx context.Context, sessionID string, def *Definition) error {
	log, err := r.store.GetEvents(ctx, sessionID)
	if err != nil {
		return err
	}

	token, ok := eventstore.LastIncompleteStep(log)
	if !ok {
		return fmt.Errorf("workflow: session %s has nothing in-flight to resume", sessionID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.setCancel(sessionID, cancel)
	defer r.clearCancel(sessionID)

	if _, err := r.append(runCtx, sessionID, events.SessionResumedPayload{}); err != nil {
		return err
	}

	resumePhase := PhaseID(token.PhaseName)
	if resumePhase == "" {
		resumePhase = def.Start
	}
	return r.run(runCtx, sessionID, def, resumePhase)
}

// Pause cooperatively cancels sessionID's in-flight run (tearing down any
// streaming agent call) and records session:paused. The run's goroutine
// observes ctx.Done() and returns; it does not block here waiting for
// that to happen, matching the async capacity-pool cancellation style the
// runtime's phase loop is built on.
func (r *Runtime) Pause(ctx context.Context, sessionID string, reason string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	_, err := r.append(ctx, sessionID, events.SessionPausedPayload{Reason: reason})
	return err
}

// Abort cancels sessionID's run and records session:aborted as terminal.
func (r *Runtime) Abort(ctx context.Context, sessionID string, reason string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	_, err := r.append(ctx, sessionID, events.SessionAbortedPayload{Reason: reason})
	return err
}

func (r *Runtime) setCancel(sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[sessionID] = cancel
}

func (r *Runtime) clearCancel(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, sessionID)
}

// run is the phase loop: execute phase, compute next, repeat until
// terminal ("") or ctx is cancelled.
func (r *Runtime) run(ctx context.Context, sessionID string, def *Definition, start PhaseID) error {
	current := start
	for current != "" {
		if err := ctx.Err(); err != nil {
			return nil // pause/abort already recorded the terminal event
		}

		phase, ok := def.Phases[current]
		if !ok {
			return fmt.Errorf("workflow %s: phase %q not defined", def.Name, current)
		}

		log, err := r.store.GetEvents(ctx, sessionID)
		if err != nil {
			return err
		}
		state := eventstore.ComputeStateAt(log, len(log))
		// The log hands state back JSON-decoded; convert it to the type of
		// def.InitialState so phases receive the type they were written for.
		if t := reflect.TypeOf(def.InitialState); t != nil && state != nil && reflect.TypeOf(state) != t {
			if data, err := json.Marshal(state); err == nil {
				typed := reflect.New(t)
				if err := json.Unmarshal(data, typed.Interface()); err == nil {
					state = typed.Elem().Interface()
				}
			}
		}

		next, state, err := r.runPhase(ctx, sessionID, def, phase, state)
		if err != nil {
			code := "PHASE_ERROR"
			var verr *apperrors.ValidationError
			if errors.As(err, &verr) {
				code = "VALIDATION_ERROR"
			}
			r.append(ctx, sessionID, events.WorkflowFailedPayload{Code: code, Message: err.Error()})
			return err
		}

		if err := def.ValidateNextTarget(current, next); err != nil {
			return err
		}
		current = next
	}

	_, err := r.append(ctx, sessionID, events.WorkflowCompletedPayload{Success: true})
	return err
}

func (r *Runtime) runPhase(ctx context.Context, sessionID string, def *Definition, phase *Phase, state any) (PhaseID, any, error) {
	if _, err := r.append(ctx, sessionID, events.PhaseStartPayload{Name: string(phase.ID)}); err != nil {
		return "", nil, err
	}

	switch {
	case phase.Agent != nil:
		// runAgentPhase appends its own state:updated after every turn, so
		// the canonical agent:completed -> state:updated -> phase:complete
		// ordering holds even across a multi-turn Until loop.
		next, err := r.runAgentPhase(ctx, sessionID, phase, state)
		if err != nil {
			return "", nil, err
		}
		state = next

	case phase.AwaitInput != nil:
		next, err := r.runAwaitInputPhase(ctx, sessionID, phase.AwaitInput, state)
		if err != nil {
			return "", nil, err
		}
		state = next
		if _, err := r.append(ctx, sessionID, events.StateUpdatedPayload{State: state}); err != nil {
			return "", nil, err
		}

	default:
		next, err := phase.Run(state)
		if err != nil {
			return "", nil, err
		}
		state = next
		if _, err := r.append(ctx, sessionID, events.StateUpdatedPayload{State: state}); err != nil {
			return "", nil, err
		}
	}

	if _, err := r.append(ctx, sessionID, events.PhaseCompletePayload{Name: string(phase.ID)}); err != nil {
		return "", nil, err
	}

	return phase.Next(state), state, nil
}

// runAgentPhase loops the agent's Prompt/Stream/Update cycle until Until
// reports done, retrying provider failures with backoff (spec §4.6). Each
// turn's output is validated against the agent's outputSchema before
// Update runs; a validation failure aborts the phase unless
// phase.ContinueOnError is set, in which case the turn's output is
// discarded and the phase proceeds with its prior state.
func (r *Runtime) runAgentPhase(ctx context.Context, sessionID string, phase *Phase, state any) (any, error) {
	agent := phase.Agent

	for {
		if phase.Until != nil && phase.Until(state) {
			return state, nil
		}

		output, err := r.runAgentTurn(ctx, sessionID, agent, state)
		if err != nil {
			return nil, err
		}

		if verr := validateOutput(agent.OutputSchema, output); verr != nil {
			var ve *apperrors.ValidationError
			path := ""
			if errors.As(verr, &ve) {
				path = ve.Path
			}
			r.append(ctx, sessionID, events.AgentFailedPayload{
				AgentName: agent.Name, Reason: events.ReasonValidationError, Message: verr.Error(), Path: path,
			})
			if !phase.ContinueOnError {
				return nil, verr
			}
			if phase.Until == nil {
				return state, nil
			}
			continue
		}

		state, err = agent.Update(output, state)
		if err != nil {
			r.append(ctx, sessionID, events.AgentFailedPayload{
				AgentName: agent.Name, Reason: events.ReasonValidationError, Message: err.Error(),
			})
			if !phase.ContinueOnError {
				return nil, err
			}
			if phase.Until == nil {
				return state, nil
			}
			continue
		}

		if _, err := r.append(ctx, sessionID, events.AgentCompletedPayload{AgentName: agent.Name, Success: true, Output: output}); err != nil {
			return nil, err
		}
		if _, err := r.append(ctx, sessionID, events.StateUpdatedPayload{State: state}); err != nil {
			return nil, err
		}

		if phase.Until == nil {
			return state, nil
		}
	}
}

// runAwaitInputPhase emits the AwaitInput prompt and blocks until a
// correlated reply arrives (spec §4.6 "Interactive workflows"): a
// session:reply whose prompt_id matches the one just published, delivered
// via the events.Bus. Pause/Abort cancel ctx, which unblocks this wait the
// same way they interrupt a provider stream.
func (r *Runtime) runAwaitInputPhase(ctx context.Context, sessionID string, ip *InputPrompt, state any) (any, error) {
	promptID := uuid.NewString()

	var prompt string
	if ip.Prompt != nil {
		prompt = ip.Prompt(state)
	}
	var choices []string
	if ip.Choices != nil {
		choices = ip.Choices(state)
	}

	if _, err := r.append(ctx, sessionID, events.SessionPromptPayload{PromptID: promptID, Prompt: prompt, Choices: choices}); err != nil {
		return nil, err
	}

	reply, err := r.awaitReply(ctx, sessionID, promptID)
	if err != nil {
		return nil, err
	}

	return ip.Apply(reply, state)
}

// awaitReply blocks until a session:reply correlated by promptID is
// published on the bus for sessionID. It first checks the durable log, so
// a Resume after a process restart picks up a reply that arrived while
// nothing was listening, instead of waiting forever for a re-delivery the
// bus can't provide.
func (r *Runtime) awaitReply(ctx context.Context, sessionID, promptID string) (events.SessionReplyPayload, error) {
	if log, err := r.store.GetEvents(ctx, sessionID); err == nil {
		if reply, ok := findReply(log, promptID); ok {
			return reply, nil
		}
	}

	ch, unsubscribe := r.bus.Subscribe(sessionID, events.Filter(events.SessionReply))
	defer unsubscribe()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events.SessionReplyPayload{}, fmt.Errorf("workflow: session %s: reply channel closed awaiting prompt %s", sessionID, promptID)
			}
			reply, ok := events.ExtractPayload[events.SessionReplyPayload](e)
			if ok && reply.PromptID == promptID {
				return reply, nil
			}
		case <-ctx.Done():
			return events.SessionReplyPayload{}, ctx.Err()
		}
	}
}

func findReply(log []events.Event, promptID string) (events.SessionReplyPayload, bool) {
	for _, e := range log {
		if e.Name != events.SessionReply {
			continue
		}
		reply, ok := events.ExtractPayload[events.SessionReplyPayload](e)
		if ok && reply.PromptID == promptID {
			return reply, true
		}
	}
	return events.SessionReplyPayload{}, false
}

// runAgentTurn runs one Stream call with retry/backoff on retryable
// provider errors, emitting agent:started/thinking/text/tool/retry events
// as it goes.
func (r *Runtime) runAgentTurn(ctx context.Context, sessionID string, agent *Agent, state any) (map[string]any, error) {
	if _, err := r.append(ctx, sessionID, events.AgentStartedPayload{AgentName: agent.Name}); err != nil {
		return nil, err
	}

	prov, err := r.registry.Get(ctx, agent.Provider)
	if err != nil {
		return nil, err
	}

	opts := StreamOptionsFor(agent, state)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := r.stream(ctx, sessionID, agent, prov, opts)
		if err == nil {
			return output, nil
		}
		lastErr = err

		var perr *provider.Error
		retryable := false
		if errors.As(err, &perr) {
			retryable = perr.Code.Retryable()
		}
		if !retryable || attempt == maxAttempts {
			r.append(ctx, sessionID, events.AgentFailedPayload{
				AgentName: agent.Name, Reason: events.ReasonProviderError, Message: err.Error(),
			})
			return nil, err
		}

		delay := nextBackoff(attempt)
		r.append(ctx, sessionID, events.AgentRetryPayload{
			AgentName: agent.Name, Attempt: attempt, DelayMS: delay.Milliseconds(), Reason: err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *Runtime) stream(ctx context.Context, sessionID string, agent *Agent, prov provider.Provider, opts provider.StreamOptions) (map[string]any, error) {
	ch, err := prov.Stream(ctx, opts)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	for ev := range ch {
		switch ev.Kind {
		case provider.KindThinkingDelta:
			r.append(ctx, sessionID, events.AgentThinkingPayload{AgentName: agent.Name, Delta: ev.Thinking})
		case provider.KindTextDelta:
			r.append(ctx, sessionID, events.AgentTextPayload{AgentName: agent.Name, Delta: ev.Text})
		case provider.KindToolCall:
			var args map[string]any
			_ = json.Unmarshal(ev.ToolArgsJSON, &args)
			r.append(ctx, sessionID, events.AgentToolStartPayload{AgentName: agent.Name, ToolID: ev.ToolCallID, ToolName: ev.ToolName, Input: args})
		case provider.KindToolResult:
			r.append(ctx, sessionID, events.AgentToolCompletePayload{AgentName: agent.Name, ToolID: ev.ToolCallID, Output: ev.ToolResult, IsError: ev.ToolIsError})
		case provider.KindUsage:
			if ev.InputTokens > 0 || ev.OutputTokens > 0 {
				r.append(ctx, sessionID, events.AgentUsagePayload{AgentName: agent.Name, InputTokens: ev.InputTokens, OutputTokens: ev.OutputTokens})
			}
		case provider.KindResult:
			_ = json.Unmarshal(ev.Result, &result)
		case provider.KindStop:
			if strings.HasPrefix(ev.StopReason, "error") {
				return nil, fmt.Errorf("%s", ev.StopReason)
			}
		}
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func (r *Runtime) append(ctx context.Context, sessionID string, payload events.Payload) (events.Event, error) {
	log, err := r.store.GetEvents(ctx, sessionID)
	pos := 0
	if err == nil {
		pos = len(log)
	}
	e := events.NewTypedEvent(sessionID, pos, payload)
	stored, err := r.store.Append(ctx, sessionID, e)
	if err != nil {
		return events.Event{}, err
	}
	r.bus.Publish(stored)
	return stored, nil
}
