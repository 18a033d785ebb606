package course

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const outlineSchemaURL = "schema://course-outline.json"

// outlineSchema describes the on-disk outline document.
const outlineSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "id", "modules"],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "cooldown": {"type": "string"},
    "quiz_duration": {"type": "string"},
    "modules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "has_quiz": {"type": "boolean"},
          "question_sets": {
            "type": "array",
            "items": {
              "type": "array",
              "minItems": 1,
              "items": {
                "type": "object",
                "required": ["id", "options", "answer"],
                "properties": {
                  "id": {"type": "string", "minLength": 1},
                  "prompt": {"type": "string"},
                  "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
                  "answer": {"type": "integer", "minimum": 0}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// validateDocument checks raw outline JSON against the outline schema.
func validateDocument(raw []byte) error {
	schema, err := outlineSchemaCompiled()
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func outlineSchemaCompiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(strings.NewReader(outlineSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse outline schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(outlineSchemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(outlineSchemaURL)
	})
	return compiledSchema, compileErr
}
