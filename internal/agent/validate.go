package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MustCompileSchema compiles an embedded schema source, panicking on
// failure. Schemas ship with the binary, so a compile failure is a build
// defect, not a runtime condition.
func MustCompileSchema(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// ValidateSchema checks raw JSON against a compiled schema.
func ValidateSchema(schema *jsonschema.Schema, raw json.RawMessage) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal for validation: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
