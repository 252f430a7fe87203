package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// graphSchema is the on-disk contract for <triad>_graph.json. Structural
// invariants that need field-path error messages are re-checked in Validate;
// the schema is the first gate against arbitrary shapes coming in from
// agent-written files.
const graphSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "label", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "content": {"type": "string"},
          "description": {"type": "string"},
          "evidence": {"type": "array", "items": {"type": "string"}},
          "process_type": {"type": "string"},
          "priority": {"type": "string"},
          "trigger_conditions": {"type": "object"}
        }
      }
    },
    "edges": {"$ref": "#/$defs/edgeList"},
    "links": {"$ref": "#/$defs/edgeList"},
    "_meta": {"type": "object"}
  },
  "$defs": {
    "edgeList": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "key": {"type": "string"},
          "relationship": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("graph_schema.json", strings.NewReader(graphSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("graph_schema.json")
	})
	return schema, schemaErr
}

// ValidateBytes runs the JSON-schema gate over raw file content.
func ValidateBytes(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile graph schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &ValidationError{Path: "", Msg: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{
				Path: strings.TrimPrefix(ve.InstanceLocation, "/"),
				Msg:  ve.Message,
			}
		}
		return &ValidationError{Path: "", Msg: err.Error()}
	}
	return nil
}
