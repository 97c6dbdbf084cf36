package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

const definitionSchemaURL = "https://flowengine.dev/schemas/process-definition.json"

// definitionSchemaJSON is the JSON Schema for ProcessDefinition documents.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowengine.dev/schemas/process-definition.json",
  "type": "object",
  "required": ["name", "entity_kind", "nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string", "minLength": 1 },
    "version": { "type": "integer", "minimum": 0 },
    "description": { "type": "string" },
    "entity_kind": { "type": "string", "minLength": 1 },
    "sla_hours": { "type": "number", "exclusiveMinimum": 0 },
    "variables_schema": { "type": ["object", "boolean"] },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "transitions": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/transition" }
    },
    "metadata": { "type": "object" },
    "created_by": { "type": "string" },
    "created_at": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "kind": {
          "type": "string",
          "enum": ["human_task", "automatic", "terminal"]
        },
        "is_start": { "type": "boolean" },
        "is_end": { "type": "boolean" },
        "assignee": {
          "type": "object",
          "properties": {
            "user_id": { "type": "string" },
            "group_id": { "type": "string" }
          },
          "additionalProperties": false
        },
        "sla_hours": { "type": "number", "exclusiveMinimum": 0 }
      },
      "additionalProperties": false
    },
    "transition": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "id": { "type": "string" },
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "priority": { "type": "integer" },
        "condition": { "type": "string" },
        "is_default": { "type": "boolean" },
        "label": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator implements Validator with JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	definitionSchema *jsonschema.Schema

	// mu guards the cache of compiled variables schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the definition schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definition schema: %w", err)
	}
	if err := c.AddResource(definitionSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add definition schema resource: %w", err)
	}
	compiled, err := c.Compile(definitionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	return &JSONSchemaValidator{
		definitionSchema: compiled,
		cache:            make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDefinition checks the document shape of def and rejects duplicate
// node and transition IDs.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.ProcessDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "process definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize process definition").WithCause(err)
	}
	if err := v.definitionSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}

	nodeIDs := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if _, dup := nodeIDs[n.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		nodeIDs[n.ID] = struct{}{}
	}
	transitionIDs := make(map[string]struct{}, len(def.Transitions))
	for _, t := range def.Transitions {
		if t.ID == "" {
			continue
		}
		if _, dup := transitionIDs[t.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate transition id %q", t.ID)
		}
		transitionIDs[t.ID] = struct{}{}
	}
	return nil
}

// ValidateVariables validates vars against a JSON Schema given as raw bytes.
// An empty schema accepts everything. Compiled schemas are cached.
func (v *JSONSchemaValidator) ValidateVariables(vars map[string]any, variablesSchema []byte) error {
	if len(variablesSchema) == 0 {
		return nil
	}
	if vars == nil {
		vars = map[string]any{}
	}

	compiled, err := v.getOrCompile(variablesSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid variables schema").WithCause(err)
	}

	doc, err := toJSONValue(vars)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize variables").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

// CompileSchema reports whether raw is a usable JSON Schema.
func (v *JSONSchemaValidator) CompileSchema(raw []byte) error {
	_, err := v.getOrCompile(raw)
	return err
}

func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// A fresh compiler and URL per schema avoids resource collisions.
	url := fmt.Sprintf("flowengine://variables-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into a VALIDATION_ERROR
// whose details list every leaf violation with its location.
func toEngineError(err error) *schema.EngineError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
