package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Go Scenario struct using invopop/jsonschema. Used by semantic validation
// and exported by `gaze schema` for editor integration.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Scenario{})
	s.ID = "https://github.com/ormasoftchile/gaze/schemas/scenario-v0.json"
	s.Title = "Gaze Browser Scenario v0"
	s.Description = "Schema for gaze scenario YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// JSONSchema renders the ordered declaration list as a plain string map,
// matching the document form.
func (VarDecls) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		AdditionalProperties: &jsonschema.Schema{
			Type: "string",
		},
	}
}
