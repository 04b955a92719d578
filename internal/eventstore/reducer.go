package eventstore

import "github.com/open-harness/loom/internal/events"

// ComputeStateAt is the sole source of truth for a session's state (spec
// invariant E4): it folds log[:n] and returns the State carried by the
// last StateUpdated event, or nil if none occurred. State is always a full
// replacement, never a delta, so folding is just "find the last one".
func ComputeStateAt(log []events.Event, n int) any {
	if n > len(log) {
		n = len(log)
	}
	var state any
	for i := 0; i < n; i++ {
		e := log[i]
		if e.Name != events.StateUpdated {
			continue
		}
		if p, ok := events.ExtractPayload[events.StateUpdatedPayload](e); ok {
			state = p.State
		}
	}
	return state
}

// ComputeTitle returns a session's current display label: the Title carried
// by the last SessionTitledPayload in log, or "" if the session was never
// titled (spec [EXPANSION]: Session.Title).
func ComputeTitle(log []events.Event) string {
	var title string
	for _, e := range log {
		if e.Name != events.SessionTitled {
			continue
		}
		if p, ok := events.ExtractPayload[events.SessionTitledPayload](e); ok {
			title = p.Title
		}
	}
	return title
}

// TokenUsage is a session's cumulative token consumption, folded from every
// AgentUsage event in its log rather than tracked as a separate counter
// (grounded on internal/storage/costtracker.go's accumulator, re-homed onto
// the event-sourced model every other derived value in this package uses).
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ComputeTokenUsage sums every AgentUsage event's token counts in log.
func ComputeTokenUsage(log []events.Event) TokenUsage {
	var usage TokenUsage
	for _, e := range log {
		if e.Name != events.AgentUsage {
			continue
		}
		if p, ok := events.ExtractPayload[events.AgentUsagePayload](e); ok {
			usage.Input += p.InputTokens
			usage.Output += p.OutputTokens
		}
	}
	return usage
}

// LastIncompleteStep scans log for the most recent PhaseStart or
// AgentStarted event lacking a matching completion event, and returns a
// ResumeToken identifying it. Used by resume to retry the step a pause or
// crash interrupted, rather than re-running the whole phase from scratch.
func LastIncompleteStep(log []events.Event) (events.ResumeToken, bool) {
	var (
		openPhase string
		openPos   int
		agent     string
		agentPos  int
		haveAgent bool
		havePhase bool
	)

	for _, e := range log {
		switch e.Name {
		case events.PhaseStart:
			if p, ok := events.ExtractPayload[events.PhaseStartPayload](e); ok {
				openPhase = p.Name
				openPos = e.Position
				havePhase = true
			}
		case events.PhaseComplete:
			havePhase = false
			openPhase = ""
		case events.AgentStarted:
			if p, ok := events.ExtractPayload[events.AgentStartedPayload](e); ok {
				agent = p.AgentName
				agentPos = e.Position
				haveAgent = true
			}
		case events.AgentCompleted, events.AgentFailed:
			haveAgent = false
			agent = ""
		}
	}

	switch {
	case haveAgent:
		return events.ResumeToken{PhaseName: openPhase, AgentName: agent, Position: agentPos}, true
	case havePhase:
		return events.ResumeToken{PhaseName: openPhase, Position: openPos}, true
	default:
		return events.ResumeToken{}, false
	}
}
