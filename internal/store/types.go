package store

import (
	"encoding/json"
	"time"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// Instance is the persisted state of one running (or finished) process.
type Instance struct {
	ID           string                `json:"id"`
	DefinitionID string                `json:"definition_id"`
	EntityKind   string                `json:"entity_kind"`
	EntityID     string                `json:"entity_id"`
	Status       schema.InstanceStatus `json:"status"`
	CurrentNode  string                `json:"current_node,omitempty"`
	Variables    map[string]any        `json:"variables"`
	StartedBy    string                `json:"started_by"`
	StartedAt    time.Time             `json:"started_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	SLADueAt     *time.Time            `json:"sla_due_at,omitempty"`
	Version      int64                 `json:"version"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Clone returns a copy whose Variables map can be mutated independently.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Variables = make(map[string]any, len(i.Variables))
	for k, v := range i.Variables {
		c.Variables[k] = v
	}
	return &c
}

// Task is a unit of human work created when an instance enters a human-task node.
type Task struct {
	ID            string            `json:"id"`
	InstanceID    string            `json:"instance_id"`
	NodeID        string            `json:"node_id"`
	Name          string            `json:"name"`
	Status        schema.TaskStatus `json:"status"`
	AssigneeUser  string            `json:"assignee_user,omitempty"`
	AssigneeGroup string            `json:"assignee_group,omitempty"`
	DueAt         *time.Time        `json:"due_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CompletedBy   string            `json:"completed_by,omitempty"`
}

// HistoryEntry is an immutable audit record. Sequence is assigned by the
// store and increases by one per instance.
type HistoryEntry struct {
	ID         int64           `json:"id"`
	InstanceID string          `json:"instance_id"`
	Sequence   int64           `json:"sequence"`
	Action     string          `json:"action"`
	FromNode   string          `json:"from_node,omitempty"`
	ToNode     string          `json:"to_node,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// SLABreach kinds.
const (
	BreachKindTask     = "task"
	BreachKindInstance = "instance"
)

// --- Filter types ---

// DefinitionFilter specifies criteria for listing definitions.
type DefinitionFilter struct {
	Name       string `json:"name,omitempty"`
	EntityKind string `json:"entity_kind,omitempty"`
	LatestOnly bool   `json:"latest_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// InstanceFilter specifies criteria for listing instances.
type InstanceFilter struct {
	DefinitionID string                 `json:"definition_id,omitempty"`
	Status       *schema.InstanceStatus `json:"status,omitempty"`
	EntityKind   string                 `json:"entity_kind,omitempty"`
	EntityID     string                 `json:"entity_id,omitempty"`
	CurrentNode  string                 `json:"current_node,omitempty"`
	SLADueBefore *time.Time             `json:"sla_due_before,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
	Offset       int                    `json:"offset,omitempty"`
}

// TaskFilter specifies criteria for listing tasks. An empty Statuses slice
// matches every status.
type TaskFilter struct {
	InstanceID    string              `json:"instance_id,omitempty"`
	NodeID        string              `json:"node_id,omitempty"`
	Statuses      []schema.TaskStatus `json:"statuses,omitempty"`
	AssigneeUser  string              `json:"assignee_user,omitempty"`
	AssigneeGroup string              `json:"assignee_group,omitempty"`
	DueBefore     *time.Time          `json:"due_before,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
}
