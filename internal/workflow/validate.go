package workflow

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/open-harness/loom/internal/apperrors"
)

// validateOutput checks output against an agent's outputSchema (spec §4.6:
// "Result.output is validated against outputSchema before Update runs"),
// grounded on goadesign-goa-ai's validatePayloadJSONAgainstSchema: compile
// the schema document fresh per call and run it against the decoded
// output. An empty schema means the agent doesn't constrain its output.
func validateOutput(schema json.RawMessage, output map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return apperrors.NewValidationError("malformed output schema: "+err.Error(), "")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return apperrors.NewValidationError("add schema resource: "+err.Error(), "")
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return apperrors.NewValidationError("compile output schema: "+err.Error(), "")
	}

	if err := compiled.Validate(output); err != nil {
		return apperrors.NewValidationError(err.Error(), validationPath(err))
	}
	return nil
}

// validationPath extracts the JSON Pointer path a jsonschema validation
// failure occurred at, for AgentFailedPayload.Path.
func validationPath(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ""
	}
	if len(verr.InstanceLocation) == 0 {
		return ""
	}
	return "/" + strings.Join(verr.InstanceLocation, "/")
}
