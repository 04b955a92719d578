package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// DefinitionDoc is the declarative shape a WorkflowDefinition may be
// authored as (spec §6 [EXPANSION]): YAML or JSONC, compiled into the same
// *Definition the Go-literal DSL produces. A data file can't carry an
// arbitrary Go closure, so declarative Agent phases get a generic
// shallow-merge Update (the turn's output keys overwrite the matching keys
// of the state map) and Next is a static target; a phase needing a custom
// reducer or data-dependent routing is still authored as a Go Phase value
// and added to the compiled Definition's Phases map directly.
type DefinitionDoc struct {
	Name         string              `json:"name" yaml:"name"`
	InitialState map[string]any      `json:"initial_state" yaml:"initial_state"`
	Start        string              `json:"start" yaml:"start"`
	Phases       map[string]PhaseDoc `json:"phases" yaml:"phases"`
}

// PhaseDoc is one declarative phase: exactly one of Agent or Run (Run
// names a func previously registered with RegisterRunStep) must be set.
type PhaseDoc struct {
	Agent           *AgentDoc `json:"agent,omitempty" yaml:"agent,omitempty"`
	Run             string    `json:"run,omitempty" yaml:"run,omitempty"`
	Until           *UntilDoc `json:"until,omitempty" yaml:"until,omitempty"`
	Next            string    `json:"next" yaml:"next"`
	ContinueOnError bool      `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// AgentDoc declares one LLM-driven phase step.
type AgentDoc struct {
	Name         string          `json:"name" yaml:"name"`
	Provider     string          `json:"provider" yaml:"provider"`
	Prompt       string          `json:"prompt" yaml:"prompt"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
}

// UntilDoc is a state-field equality predicate: the phase loops its agent
// until state[Key] == Equals (as rendered by fmt.Sprint, so declarative
// definitions can compare against scalars without a type system).
type UntilDoc struct {
	Key    string `json:"key" yaml:"key"`
	Equals any    `json:"equals" yaml:"equals"`
}

// RunStep is a named, pre-registered Run func a declarative PhaseDoc can
// reference by name, since a data file can't embed Go code.
type RunStep func(state any) (any, error)

var runSteps = map[string]RunStep{}

// RegisterRunStep makes fn available to declarative definitions under
// name, for the Run steps a YAML/JSONC workflow file needs that aren't
// pure agent-output merges.
func RegisterRunStep(name string, fn RunStep) {
	runSteps[name] = fn
}

var promptVarRe = regexp.MustCompile(`\$\{\{\s*\.State\.(\w+)\s*\}\}`)

// LoadYAML parses data as a YAML DefinitionDoc and compiles it.
func LoadYAML(data []byte) (*Definition, error) {
	var doc DefinitionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflow: parse yaml definition: %w", err)
	}
	return compileDoc(doc)
}

// LoadJSONC parses data as a JSONC (JSON-with-comments) DefinitionDoc,
// tolerating the trailing commas and comments hujson standardizes away,
// and compiles it.
func LoadJSONC(data []byte) (*Definition, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("workflow: parse jsonc definition: %w", err)
	}
	var doc DefinitionDoc
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, fmt.Errorf("workflow: decode jsonc definition: %w", err)
	}
	return compileDoc(doc)
}

// compileDoc turns a DefinitionDoc into a *Definition, then runs the same
// Validate invariant (W1) the Go-literal DSL is subject to.
func compileDoc(doc DefinitionDoc) (*Definition, error) {
	def := &Definition{
		Name:         doc.Name,
		InitialState: doc.InitialState,
		Start:        PhaseID(doc.Start),
		Phases:       make(map[PhaseID]*Phase, len(doc.Phases)),
	}

	for id, pd := range doc.Phases {
		phase := &Phase{
			ID:              PhaseID(id),
			ContinueOnError: pd.ContinueOnError,
			Next:            staticNext(pd.Next),
		}

		if pd.Agent != nil && pd.Run != "" {
			return nil, fmt.Errorf("workflow %s: phase %q must set only one of agent or run", doc.Name, id)
		}
		switch {
		case pd.Agent != nil:
			phase.Agent = &Agent{
				Name:         pd.Agent.Name,
				Provider:     pd.Agent.Provider,
				OutputSchema: pd.Agent.OutputSchema,
				Prompt:       renderPrompt(pd.Agent.Prompt),
				Update:       mergeUpdate,
			}
			if pd.Until != nil {
				phase.Until = untilEquals(*pd.Until)
			}
		case pd.Run != "":
			fn, ok := runSteps[pd.Run]
			if !ok {
				return nil, fmt.Errorf("workflow %s: phase %q references unregistered run step %q", doc.Name, id, pd.Run)
			}
			phase.Run = func(state any) (any, error) { return fn(state) }
		default:
			return nil, fmt.Errorf("workflow %s: phase %q must set agent or run", doc.Name, id)
		}

		def.Phases[PhaseID(id)] = phase
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// mergeUpdate is the generic Update every declarative Agent phase uses:
// the turn's output keys overwrite the matching keys of the state map.
func mergeUpdate(output map[string]any, draft any) (any, error) {
	state, _ := draft.(map[string]any)
	if state == nil {
		state = map[string]any{}
	}
	merged := make(map[string]any, len(state)+len(output))
	for k, v := range state {
		merged[k] = v
	}
	for k, v := range output {
		merged[k] = v
	}
	return merged, nil
}

func staticNext(target string) func(state any) PhaseID {
	id := PhaseID(target)
	return func(state any) PhaseID { return id }
}

func untilEquals(u UntilDoc) func(state any) bool {
	return func(state any) bool {
		m, ok := state.(map[string]any)
		if !ok {
			return false
		}
		return fmt.Sprint(m[u.Key]) == fmt.Sprint(u.Equals)
	}
}

// LoadDir reads every *.yaml, *.yml, *.jsonc and *.json file directly under dir and
// compiles each into a *Definition, for a Scaffold construction-time option
// that authors workflows as data files instead of Go literals. Returns an
// empty slice, not an error, if dir does not exist: declarative workflows
// are an optional authoring surface.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: read definitions dir %s: %w", dir, err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("workflow: read %s: %w", path, err)
		}

		var def *Definition
		switch ext := strings.ToLower(filepath.Ext(entry.Name())); ext {
		case ".yaml", ".yml":
			def, err = LoadYAML(data)
		case ".jsonc", ".json":
			def, err = LoadJSONC(data)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("workflow: compile %s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// renderPrompt substitutes ${{ .State.Key }} references against the
// phase's current state, mirroring internal/config/loader.go's
// ${{ .Env.VAR }} expansion style rather than pulling in a templating
// engine for what is still just string substitution.
func renderPrompt(template string) func(state any) string {
	return func(state any) string {
		m, _ := state.(map[string]any)
		return promptVarRe.ReplaceAllStringFunc(template, func(match string) string {
			parts := promptVarRe.FindStringSubmatch(match)
			if len(parts) < 2 || m == nil {
				return ""
			}
			return fmt.Sprint(m[parts[1]])
		})
	}
}
