package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// sourceSchemaJSONSchema is the structural contract every backend's
// get_schema response must satisfy before it is decoded: mcp_id and db_type
// present, db_type one of the four known families, entities an array.
const sourceSchemaJSONSchema = `{
  "type": "object",
  "required": ["mcp_id", "db_type", "entities"],
  "properties": {
    "mcp_id": {"type": "string", "minLength": 1},
    "db_type": {"type": "string", "enum": ["sql", "nosql", "graph", "vector"]},
    "entities": {"type": "array"}
  }
}`

// JSONSchemaValidator validates a raw get_schema response body against
// sourceSchemaJSONSchema before the catalog attempts to decode it into a
// SourceSchema, catching malformed backend responses earlier and with a
// clearer error than a failed json.Unmarshal would.
type JSONSchemaValidator struct {
	schema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles sourceSchemaJSONSchema once for reuse
// across every get_schema response in a catalog load pass.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(sourceSchemaJSONSchema), &doc); err != nil {
		return nil, fmt.Errorf("parsing source schema contract: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("source-schema.json", doc); err != nil {
		return nil, fmt.Errorf("adding source schema contract resource: %w", err)
	}
	schema, err := compiler.Compile("source-schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling source schema contract: %w", err)
	}
	return &JSONSchemaValidator{schema: schema}, nil
}

// Validate checks raw against the source schema contract.
func (v *JSONSchemaValidator) Validate(raw map[string]interface{}) error {
	return v.schema.Validate(raw)
}
