package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

func TestValidateGraph_Clean(t *testing.T) {
	result := validateGraph(approvalDef())
	assert.Empty(t, result.Warnings)
	assert.True(t, result.Valid())
}

func TestValidateGraph_ReworkLoopIsAllowed(t *testing.T) {
	def := approvalDef()
	def.Nodes = append(def.Nodes, schema.Node{ID: "rework", Kind: schema.NodeKindHumanTask,
		Assignee: schema.AssigneeSpec{UserID: "author"}})
	def.Transitions = append(def.Transitions,
		schema.Transition{From: "review", To: "rework", Condition: strPtr("outcome == 'revise'")},
		schema.Transition{From: "rework", To: "review"},
	)

	result := validateGraph(def)
	assert.Empty(t, result.Warnings)
}

func TestValidateGraph_Warnings(t *testing.T) {
	def := approvalDef()
	def.Nodes = append(def.Nodes,
		schema.Node{ID: "orphan", Kind: schema.NodeKindAutomatic},
		schema.Node{ID: "limbo", Kind: schema.NodeKindAutomatic},
		schema.Node{ID: "spin", Kind: schema.NodeKindAutomatic},
	)
	def.Transitions = append(def.Transitions,
		schema.Transition{From: "orphan", To: "approved"},
		schema.Transition{From: "submit", To: "limbo", Priority: 9},
		schema.Transition{From: "submit", To: "spin", Priority: 10},
		schema.Transition{From: "spin", To: "spin"},
	)

	result := validateGraph(def)
	assert.True(t, result.Valid())

	msgs := issueMessages(result.Warnings)
	assert.Contains(t, msgs, `node "orphan" is unreachable from the start node`)
	assert.Contains(t, msgs, `node "limbo" has no outgoing transitions; instances entering it stall`)
	assert.Contains(t, msgs, `no path from node "spin" reaches an end node`)
	assert.Len(t, msgs, 3)
}
