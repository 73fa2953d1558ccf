package document

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const contentSchemaURL = "docsync://schemas/section-content.json"

const contentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["blocks"],
  "additionalProperties": false,
  "properties": {
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["paragraph", "heading", "listItem"]},
          "text": {"type": "string"},
          "level": {"type": "integer", "minimum": 0, "maximum": 6},
          "clock": {"type": "integer", "minimum": 0}
        },
        "additionalProperties": false
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(contentSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(contentSchemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(contentSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateContent checks raw bytes against the section content schema.
func ValidateContent(raw []byte) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("content schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("malformed content: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("malformed content: %w", err)
	}
	return nil
}
