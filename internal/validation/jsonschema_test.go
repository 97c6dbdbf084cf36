package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

func newSchemaValidator(t *testing.T) *JSONSchemaValidator {
	t.Helper()
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	return v
}

func TestValidateDefinition_Valid(t *testing.T) {
	v := newSchemaValidator(t)
	assert.NoError(t, v.ValidateDefinition(approvalDef()))
}

func TestValidateDefinition_Nil(t *testing.T) {
	v := newSchemaValidator(t)
	err := v.ValidateDefinition(nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestValidateDefinition_NullTransitionsAllowed(t *testing.T) {
	v := newSchemaValidator(t)
	def := approvalDef()
	def.Transitions = nil
	assert.NoError(t, v.ValidateDefinition(def))
}

func TestValidateDefinition_StructuralFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*schema.ProcessDefinition)
	}{
		{"missing name", func(d *schema.ProcessDefinition) { d.Name = "" }},
		{"missing entity kind", func(d *schema.ProcessDefinition) { d.EntityKind = "" }},
		{"no nodes", func(d *schema.ProcessDefinition) { d.Nodes = []schema.Node{} }},
		{"nil nodes", func(d *schema.ProcessDefinition) { d.Nodes = nil }},
		{"unknown kind", func(d *schema.ProcessDefinition) { d.Nodes[0].Kind = "script" }},
		{"empty node id", func(d *schema.ProcessDefinition) { d.Nodes[1].ID = "" }},
		{"empty transition target", func(d *schema.ProcessDefinition) { d.Transitions[0].To = "" }},
		{"non-positive sla", func(d *schema.ProcessDefinition) {
			zero := 0.0
			d.SLAHours = &zero
		}},
		{"non-positive node sla", func(d *schema.ProcessDefinition) {
			neg := -2.0
			d.Nodes[1].SLAHours = &neg
		}},
	}

	v := newSchemaValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := approvalDef()
			tt.mutate(def)
			err := v.ValidateDefinition(def)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
		})
	}
}

func TestValidateDefinition_DuplicateIDs(t *testing.T) {
	v := newSchemaValidator(t)

	def := approvalDef()
	def.Nodes = append(def.Nodes, schema.Node{ID: "review", Kind: schema.NodeKindAutomatic})
	err := v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate node id "review"`)

	def = approvalDef()
	def.Transitions[1].ID = "t1"
	err = v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate transition id "t1"`)
}

func TestValidateDefinition_ViolationDetails(t *testing.T) {
	v := newSchemaValidator(t)
	def := approvalDef()
	def.Name = ""
	def.Nodes[0].Kind = "script"

	err := v.ValidateDefinition(def)
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	violations, ok := engErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}

const leaveVarsSchema = `{
  "type": "object",
  "required": ["days"],
  "properties": {
    "days": { "type": "integer", "minimum": 1 },
    "reason": { "type": "string" }
  }
}`

func TestValidateVariables(t *testing.T) {
	v := newSchemaValidator(t)

	assert.NoError(t, v.ValidateVariables(map[string]any{"days": 3}, []byte(leaveVarsSchema)))

	err := v.ValidateVariables(map[string]any{"days": 0}, []byte(leaveVarsSchema))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = v.ValidateVariables(nil, []byte(leaveVarsSchema))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days")
}

func TestValidateVariables_EmptySchemaAcceptsAll(t *testing.T) {
	v := newSchemaValidator(t)
	assert.NoError(t, v.ValidateVariables(map[string]any{"anything": true}, nil))
}

func TestValidateVariables_InvalidSchema(t *testing.T) {
	v := newSchemaValidator(t)
	err := v.ValidateVariables(map[string]any{}, []byte(`{"type": 42}`))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "invalid variables schema")
}

func TestValidateVariables_CachesCompiledSchemas(t *testing.T) {
	v := newSchemaValidator(t)
	raw := json.RawMessage(leaveVarsSchema)

	for i := 0; i < 3; i++ {
		require.NoError(t, v.ValidateVariables(map[string]any{"days": i + 1}, raw))
	}
	assert.Len(t, v.cache, 1)

	require.NoError(t, v.CompileSchema([]byte(`{"type": "object"}`)))
	assert.Len(t, v.cache, 2)
}
