package schema

import (
	"encoding/json"
	"time"
)

// ProcessDefinition is the immutable template graph an instance executes.
// Editing a process means registering a new version; stored versions are never mutated.
type ProcessDefinition struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name"`
	Version         int             `json:"version,omitempty"`
	Description     string          `json:"description,omitempty"`
	EntityKind      string          `json:"entity_kind"`
	SLAHours        *float64        `json:"sla_hours,omitempty"`
	VariablesSchema json.RawMessage `json:"variables_schema,omitempty"`
	Nodes           []Node          `json:"nodes"`
	Transitions     []Transition    `json:"transitions"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
}

// NodeKind is the closed set of node behaviours.
type NodeKind string

const (
	NodeKindHumanTask NodeKind = "human_task"
	NodeKindAutomatic NodeKind = "automatic"
	NodeKindTerminal  NodeKind = "terminal"
)

// Valid reports whether k is one of the known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindHumanTask, NodeKindAutomatic, NodeKindTerminal:
		return true
	default:
		return false
	}
}

// Node is a point in the process graph.
type Node struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Kind        NodeKind     `json:"kind"`
	IsStart     bool         `json:"is_start,omitempty"`
	IsEnd       bool         `json:"is_end,omitempty"`
	Assignee    AssigneeSpec `json:"assignee,omitempty"`
	SLAHours    *float64     `json:"sla_hours,omitempty"`
}

// DisplayName returns the node name, falling back to its ID.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// AssigneeSpec is the static assignment declared on a human-task node.
type AssigneeSpec struct {
	UserID  string `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

// IsZero reports whether no assignee was declared.
func (a AssigneeSpec) IsZero() bool {
	return a.UserID == "" && a.GroupID == ""
}

// Transition is a directed, optionally conditioned edge between two nodes.
// A nil Condition always fires.
type Transition struct {
	ID        string  `json:"id,omitempty"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Priority  int     `json:"priority"`
	Condition *string `json:"condition,omitempty"`
	IsDefault bool    `json:"is_default,omitempty"`
	Label     string  `json:"label,omitempty"`
}

// SLADuration converts fractional hours to a duration. ok is false when no SLA is declared.
func SLADuration(hours *float64) (d time.Duration, ok bool) {
	if hours == nil || *hours <= 0 {
		return 0, false
	}
	return time.Duration(*hours * float64(time.Hour)), true
}
