package validation

import (
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// ProcessValidator runs the full validation pipeline for process definitions:
//  1. document structure (JSON Schema, duplicate IDs)
//  2. semantic rules (start/end nodes, transition endpoints, defaults, assignees)
//  3. graph analysis (reachability, stalls), warnings only
type ProcessValidator struct {
	schema *JSONSchemaValidator
}

// NewProcessValidator creates a ProcessValidator.
func NewProcessValidator() (*ProcessValidator, error) {
	sv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &ProcessValidator{schema: sv}, nil
}

// Validate runs every stage and returns the aggregated result. A failing
// structural stage short-circuits the rest.
func (v *ProcessValidator) Validate(def *schema.ProcessDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := v.schema.ValidateDefinition(def); err != nil {
		result.AddError("", schema.ErrCodeValidation, err.Error())
		return result
	}

	result.Merge(validateSemantic(def, v.schema))
	result.Merge(validateGraph(def))
	return result
}

// ValidateDefinition implements Validator. Errors carry DEFINITION_ERROR and
// list every issue in their details.
func (v *ProcessValidator) ValidateDefinition(def *schema.ProcessDefinition) error {
	return v.Validate(def).ToError(schema.ErrCodeDefinition)
}

// ValidateVariables implements Validator.
func (v *ProcessValidator) ValidateVariables(vars map[string]any, variablesSchema []byte) error {
	return v.schema.ValidateVariables(vars, variablesSchema)
}
