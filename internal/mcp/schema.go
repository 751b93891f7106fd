package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// argValidator checks tool-call arguments against a compiled JSON Schema
// before they reach the dispatcher, so handlers only see shapes they can
// trust.
type argValidator struct {
	schema *jsonschema.Schema
}

func newArgValidator(schemaJSON string) (*argValidator, error) {
	// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the
	// validator requires.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("args.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("args.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &argValidator{schema: schema}, nil
}

// mustArgValidator compiles a schema known at build time.
func mustArgValidator(schemaJSON string) *argValidator {
	v, err := newArgValidator(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// check validates one argument map. A nil map validates as an empty
// object.
func (v *argValidator) check(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Argument schemas for the tools that take parameters.
var (
	keyboardInputArgs = mustArgValidator(`{
		"type": "object",
		"properties": {
			"base64_text": {"type": "string", "minLength": 1},
			"clear": {"type": "boolean"}
		},
		"required": ["base64_text"]
	}`)

	keyboardKeyArgs = mustArgValidator(`{
		"type": "object",
		"properties": {
			"key_code": {"type": "integer", "minimum": 0}
		},
		"required": ["key_code"]
	}`)

	overlayOffsetArgs = mustArgValidator(`{
		"type": "object",
		"properties": {
			"offset": {"type": "integer"}
		},
		"required": ["offset"]
	}`)

	overlayVisibleArgs = mustArgValidator(`{
		"type": "object",
		"properties": {
			"visible": {"type": "boolean"}
		},
		"required": ["visible"]
	}`)

	socketPortArgs = mustArgValidator(`{
		"type": "object",
		"properties": {
			"port": {"type": "integer", "minimum": 1024, "maximum": 65535}
		},
		"required": ["port"]
	}`)
)
