package formtab

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// formSpecSchema is the JSON Schema of a form spec document.
const formSpecSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$ref": "#/$defs/form",
  "$defs": {
    "form": {
      "type": "object",
      "required": ["name", "attributes"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "owner_id": {"type": "integer"},
        "view": {
          "type": "object",
          "required": ["name"],
          "properties": {
            "name": {"type": "string", "minLength": 1},
            "constraints": {}
          }
        },
        "attributes": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/attribute"}}
      }
    },
    "attribute": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "type": {"type": "string"},
        "form": {"$ref": "#/$defs/form"},
        "choices": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["label"],
            "properties": {
              "id": {"type": "integer", "minimum": 1},
              "label": {"type": "string", "minLength": 1},
              "order": {"type": "integer"},
              "language": {"type": "string"}
            }
          }
        },
        "prompts": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["text"],
            "properties": {
              "text": {"type": "string", "minLength": 1},
              "role": {"type": "string"},
              "language": {"type": "string"}
            }
          }
        },
        "view": {
          "type": "object",
          "properties": {
            "value_constraints": {"type": "array", "items": {"$ref": "#/$defs/rule"}},
            "view_constraints": {},
            "choice_set_id": {"type": "integer"}
          }
        }
      }
    },
    "rule": {
      "type": "object",
      "required": ["actions"],
      "properties": {
        "conditions": {"type": "array", "items": {"type": "object"}},
        "actions": {
          "type": "array",
          "minItems": 1,
          "items": {"type": "object", "required": ["set"], "properties": {"set": {"type": "object"}}}
        }
      }
    }
  }
}`

var (
	resolveOnce    sync.Once
	resolvedSchema *jsonschema.Resolved
	resolveErr     error
)

func formSpecValidator() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(formSpecSchema), &schema); err != nil {
			resolveErr = fmt.Errorf("failed to unmarshal form spec schema: %w", err)
			return
		}
		resolvedSchema, resolveErr = schema.Resolve(&jsonschema.ResolveOptions{})
		if resolveErr != nil {
			resolveErr = fmt.Errorf("failed to resolve form spec schema: %w", resolveErr)
		}
	})
	return resolvedSchema, resolveErr
}

// ParseFormSpec decodes a form spec document, checks it against the document
// schema and then runs FormSpec.Validate.
func ParseFormSpec(data []byte) (*FormSpec, error) {
	resolved, err := formSpecValidator()
	if err != nil {
		return nil, NewInternalError("form spec schema unavailable", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, NewInvalidSpecError("", fmt.Sprintf("malformed form spec document: %v", err))
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, NewInvalidSpecError("", fmt.Sprintf("form spec document rejected: %v", err))
	}

	var spec FormSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, NewInvalidSpecError("", fmt.Sprintf("malformed form spec document: %v", err))
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
