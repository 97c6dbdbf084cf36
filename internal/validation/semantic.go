package validation

import (
	"fmt"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// schemaCompiler compiles a variables schema. JSONSchemaValidator satisfies it.
type schemaCompiler interface {
	CompileSchema(raw []byte) error
}

// validateSemantic checks the rules the document schema cannot express:
// start and end nodes, transition endpoints, defaults, assignees.
func validateSemantic(def *schema.ProcessDefinition, compiler schemaCompiler) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]*schema.Node, len(def.Nodes))
	var starts, ends int
	for i := range def.Nodes {
		n := &def.Nodes[i]
		nodes[n.ID] = n
		path := fmt.Sprintf("nodes[%d]", i)

		if n.IsStart {
			starts++
		}
		if n.IsEnd {
			ends++
		}
		if n.IsStart && n.IsEnd {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("node %q is both start and end; instances complete on first advance", n.ID))
		}

		switch n.Kind {
		case schema.NodeKindHumanTask:
			if n.Assignee.IsZero() {
				result.AddError(path+".assignee", schema.ErrCodeValidation,
					fmt.Sprintf("human task node %q has no assignee", n.ID))
			}
		default:
			if !n.Assignee.IsZero() {
				result.AddWarning(path+".assignee", schema.ErrCodeValidation,
					fmt.Sprintf("assignee on %s node %q is ignored", n.Kind, n.ID))
			}
		}
	}

	switch {
	case starts == 0:
		result.AddError("nodes", schema.ErrCodeGraph, "no start node")
	case starts > 1:
		result.AddError("nodes", schema.ErrCodeGraph, fmt.Sprintf("%d start nodes, exactly one required", starts))
	}
	if ends == 0 {
		result.AddError("nodes", schema.ErrCodeGraph, "no end node")
	}

	defaults := make(map[string]int)
	for i, t := range def.Transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		from, okFrom := nodes[t.From]
		if !okFrom {
			result.AddError(path+".from", schema.ErrCodeGraph,
				fmt.Sprintf("references non-existent node %q", t.From))
		}
		if _, ok := nodes[t.To]; !ok {
			result.AddError(path+".to", schema.ErrCodeGraph,
				fmt.Sprintf("references non-existent node %q", t.To))
		}
		if okFrom && from.IsEnd {
			result.AddError(path+".from", schema.ErrCodeGraph,
				fmt.Sprintf("end node %q must not have outgoing transitions", t.From))
		}
		if t.IsDefault {
			defaults[t.From]++
			if defaults[t.From] == 2 {
				result.AddError(path+".is_default", schema.ErrCodeValidation,
					fmt.Sprintf("node %q has more than one default transition", t.From))
			}
			if t.Condition != nil && *t.Condition != "" {
				result.AddWarning(path+".condition", schema.ErrCodeValidation,
					"condition on a default transition is ignored")
			}
		}
	}

	if len(def.VariablesSchema) > 0 && compiler != nil {
		if err := compiler.CompileSchema(def.VariablesSchema); err != nil {
			result.AddError("variables_schema", schema.ErrCodeValidation,
				fmt.Sprintf("invalid JSON schema: %v", err))
		}
	}

	return result
}
