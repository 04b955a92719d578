// Package workflow implements the WorkflowRuntime (spec §4.6): a
// phase/task state machine that drives a WorkflowDefinition's agents to
// completion, appending every transition to an eventstore.Store and
// publishing it on an events.Bus as it goes.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/provider"
)

// PhaseID names a phase within a WorkflowDefinition.
type PhaseID string

// Agent is one LLM-driven step of a phase (spec §3 Agent, invariant A1:
// Update is a pure deterministic reducer over (output, draft state)).
type Agent struct {
	Name         string
	Provider     string
	OutputSchema json.RawMessage

	// Prompt renders the prompt to send the model from the current state.
	Prompt func(state any) string

	// Update folds the agent's decoded output into draft, returning the
	// next state. Must be pure: same (output, draft) always yields the
	// same result, never touches the clock, randomness, or I/O.
	Update func(output map[string]any, draft any) (any, error)
}

// Phase is one node of the workflow state machine: Run (a plain
// deterministic state transition), an Agent loop with an Until predicate
// deciding when the phase is done, or AwaitInput (suspend for an external
// reply). Exactly one of Run, Agent, AwaitInput is set.
type Phase struct {
	ID PhaseID

	// Run performs a non-agent transition (e.g. routing, aggregation).
	// Mutually exclusive with Agent and AwaitInput.
	Run func(state any) (any, error)

	// Agent drives one LLM turn per iteration, looping until Until
	// reports true. Mutually exclusive with Run and AwaitInput.
	Agent *Agent
	Until func(state any) bool

	// AwaitInput suspends the workflow pending a correlated reply (spec
	// §4.6 "Interactive workflows"). Mutually exclusive with Run and
	// Agent.
	AwaitInput *InputPrompt

	// ContinueOnError, when true, lets the phase finish with its
	// pre-failure state instead of aborting the workflow when its Agent
	// step's output fails outputSchema validation (spec §4.6).
	ContinueOnError bool

	// Next maps the phase's outcome to the following phase. The empty
	// PhaseID ("") marks a terminal phase.
	Next func(state any) PhaseID
}

// InputPrompt is an AwaitInput phase's content: the question/choices to
// render, and how to fold the eventual reply back into state.
type InputPrompt struct {
	// Prompt renders the question to present from the current state.
	Prompt func(state any) string

	// Choices optionally renders a fixed set of reply options.
	Choices func(state any) []string

	// Apply folds the external reply into draft, returning the next
	// state. Required; called once the correlated reply arrives.
	Apply func(reply events.SessionReplyPayload, draft any) (any, error)
}

// Definition is an immutable workflow graph: a named, versioned state
// machine of phases reachable from Start.
//
// Invariant W1: every Next(...) result must name a phase present in
// Phases (or "" for terminal); exactly one terminal phase must be
// reachable from Start along every path. Validate checks the part of this
// that can be checked without running Next; ValidateNextTarget checks each
// Next result at runtime.
type Definition struct {
	Name         string
	InitialState any
	Start        PhaseID
	Phases       map[PhaseID]*Phase
}

// Validate checks that Start names a defined phase and that every phase is
// well-formed: it has a Next function, sets exactly one of Run, Agent or
// AwaitInput, and an AwaitInput has an Apply. Next targets and the
// reachability of a terminal phase are not checked here.
func (d *Definition) Validate() error {
	if _, ok := d.Phases[d.Start]; !ok {
		return fmt.Errorf("workflow %s: start phase %q not defined", d.Name, d.Start)
	}

	seen := make(map[PhaseID]bool)
	var walk func(id PhaseID) (bool, error)
	walk = func(id PhaseID) (bool, error) {
		if id == "" {
			return true, nil
		}
		if seen[id] {
			return false, nil // already explored this branch, avoid infinite recursion on cycles
		}
		seen[id] = true

		phase, ok := d.Phases[id]
		if !ok {
			return false, fmt.Errorf("workflow %s: phase %q references undefined next phase", d.Name, id)
		}
		if phase.Next == nil {
			return false, fmt.Errorf("workflow %s: phase %q has no Next function", d.Name, id)
		}
		// Next is data-dependent, so we can't enumerate every target
		// statically without executing it; Validate only confirms Start
		// exists and phases are internally well-formed (exactly one of
		// Run, Agent, AwaitInput).
		set := 0
		for _, has := range []bool{phase.Run != nil, phase.Agent != nil, phase.AwaitInput != nil} {
			if has {
				set++
			}
		}
		if set != 1 {
			return false, fmt.Errorf("workflow %s: phase %q must set exactly one of Run, Agent, or AwaitInput", d.Name, id)
		}
		if phase.AwaitInput != nil && phase.AwaitInput.Apply == nil {
			return false, fmt.Errorf("workflow %s: phase %q AwaitInput has no Apply", d.Name, id)
		}
		return true, nil
	}

	for id := range d.Phases {
		if _, err := walk(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNextTarget is called at runtime each time Next is evaluated, to
// enforce W1 against the phase ID the data-dependent transition actually
// produced.
func (d *Definition) ValidateNextTarget(from PhaseID, target PhaseID) error {
	if target == "" {
		return nil
	}
	if _, ok := d.Phases[target]; !ok {
		return fmt.Errorf("workflow %s: phase %q transitioned to undefined phase %q", d.Name, from, target)
	}
	return nil
}

// StreamOptionsFor builds provider.StreamOptions for one agent turn.
func StreamOptionsFor(a *Agent, state any) provider.StreamOptions {
	return provider.StreamOptions{
		Provider:     a.Provider,
		Prompt:       a.Prompt(state),
		OutputSchema: a.OutputSchema,
	}
}
