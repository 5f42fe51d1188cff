// ABOUTME: JSON schema generation for tool arguments via struct reflection
// ABOUTME: Produces the parameters object sent with function definitions at provisioning

package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/2389/parley/internal/remote"
)

// DelegateToolName is the reserved tool an assistant calls to hand its turn to another assistant.
const DelegateToolName = "callAssistant"

// DelegateTargetArg carries the target assistant id in a delegation call.
const DelegateTargetArg = "assistantId"

// DelegateArgs is the argument object of a delegation call.
type DelegateArgs struct {
	AssistantID string `json:"assistantId" jsonschema_description:"Id of the assistant that should take over this turn."`
}

// SchemaFor reflects T into an inline JSON schema object.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DelegationDefinition describes the reserved delegation tool.
func DelegationDefinition() remote.FunctionDefinition {
	return remote.FunctionDefinition{
		Name:        DelegateToolName,
		Description: "Hand the current turn to another assistant on the same thread.",
		Parameters:  SchemaFor[DelegateArgs](),
	}
}
