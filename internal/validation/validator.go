package validation

import "github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"

// Validator checks process definitions before they are stored and instance
// variables before an instance starts.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateDefinition(def *schema.ProcessDefinition) error
	ValidateVariables(vars map[string]any, variablesSchema []byte) error
}
