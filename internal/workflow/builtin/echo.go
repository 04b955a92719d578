// Package builtin holds the reference workflow.Definition shipped with the
// loom binary so cmd/commands/serve.go has something to register and run
// without requiring an embedding application to supply its own. Real
// deployments register their own Definitions with scaffold.Scaffold and
// are not expected to use this one.
package builtin

import "github.com/open-harness/loom/internal/workflow"

// echoState is the workflow's InitialState, advanced once by the echo
// phase to mark the run as having been processed.
type echoState struct {
	Done bool `json:"done"`
}

// Echo is a single-phase, agent-free workflow: it advances its state to
// done and terminates. It exists to smoke-test the Hub/Transport wiring
// end to end (session creation, event streaming, status/state reads)
// without needing a provider API key configured. The session's raw input
// is still recorded on its workflow:started event and visible through
// Hub.History/GetState's underlying log, even though this phase ignores it.
func Echo() *workflow.Definition {
	return &workflow.Definition{
		Name:         "echo",
		InitialState: echoState{},
		Start:        "echo",
		Phases: map[workflow.PhaseID]*workflow.Phase{
			"echo": {
				ID: "echo",
				Run: func(state any) (any, error) {
					s := state.(echoState)
					s.Done = true
					return s, nil
				},
				Next: func(state any) workflow.PhaseID { return "" },
			},
		},
	}
}
