package engine

import (
	"slices"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// ValidInstanceTransitions defines the allowed status transitions for instances.
var ValidInstanceTransitions = map[schema.InstanceStatus][]schema.InstanceStatus{
	schema.InstanceStatusInProgress: {schema.InstanceStatusInProgress, schema.InstanceStatusCompleted, schema.InstanceStatusCancelled},
	schema.InstanceStatusCompleted:  {},
	schema.InstanceStatusCancelled:  {},
}

// ValidTaskTransitions defines the allowed status transitions for tasks.
var ValidTaskTransitions = map[schema.TaskStatus][]schema.TaskStatus{
	schema.TaskStatusPending:    {schema.TaskStatusAssigned, schema.TaskStatusInProgress, schema.TaskStatusCompleted, schema.TaskStatusCancelled},
	schema.TaskStatusAssigned:   {schema.TaskStatusAssigned, schema.TaskStatusInProgress, schema.TaskStatusCompleted, schema.TaskStatusCancelled},
	schema.TaskStatusInProgress: {schema.TaskStatusCompleted, schema.TaskStatusCancelled},
	schema.TaskStatusCompleted:  {},
	schema.TaskStatusCancelled:  {},
}

// checkInstanceTransition returns INVALID_STATE when the instance may not
// move from one status to the other.
func checkInstanceTransition(instanceID string, from, to schema.InstanceStatus) error {
	if slices.Contains(ValidInstanceTransitions[from], to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidState,
		"invalid instance transition: %s -> %s", from, to).
		WithInstance(instanceID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// checkTaskTransition returns INVALID_STATE when the task may not move from
// one status to the other.
func checkTaskTransition(task *store.Task, to schema.TaskStatus) error {
	if slices.Contains(ValidTaskTransitions[task.Status], to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidState,
		"invalid task transition: %s -> %s", task.Status, to).
		WithInstance(task.InstanceID).
		WithDetails(map[string]any{"task_id": task.ID, "from": string(task.Status), "to": string(to)})
}

// taskHistoryAction maps the status a task moves to onto its history action.
func taskHistoryAction(to schema.TaskStatus) string {
	switch to {
	case schema.TaskStatusAssigned:
		return schema.ActionTaskClaimed
	case schema.TaskStatusInProgress:
		return schema.ActionTaskStarted
	case schema.TaskStatusCompleted:
		return schema.ActionTaskCompleted
	default:
		return ""
	}
}
