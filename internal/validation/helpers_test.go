package validation

import (
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

func strPtr(s string) *string { return &s }

// approvalDef is a valid definition: submit -> review -> (approved | rejected).
func approvalDef() *schema.ProcessDefinition {
	return &schema.ProcessDefinition{
		Name:       "leave-approval",
		EntityKind: "leave_request",
		Nodes: []schema.Node{
			{ID: "submit", Kind: schema.NodeKindAutomatic, IsStart: true},
			{ID: "review", Kind: schema.NodeKindHumanTask, Assignee: schema.AssigneeSpec{GroupID: "managers"}},
			{ID: "approved", Kind: schema.NodeKindTerminal, IsEnd: true},
			{ID: "rejected", Kind: schema.NodeKindTerminal, IsEnd: true},
		},
		Transitions: []schema.Transition{
			{ID: "t1", From: "submit", To: "review"},
			{ID: "t2", From: "review", To: "approved", Priority: 1, Condition: strPtr("outcome == 'approve'")},
			{ID: "t3", From: "review", To: "rejected", IsDefault: true},
		},
	}
}

func issueMessages(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Message
	}
	return out
}
