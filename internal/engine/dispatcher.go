package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// AssigneeResolver maps a group assignee to a concrete user when a task is
// created. Returning "" leaves the task assigned to the group only.
type AssigneeResolver interface {
	ResolveGroup(ctx context.Context, groupID string, inst *store.Instance) (userID string, err error)
}

// AssigneeResolverFunc adapts a function to AssigneeResolver.
type AssigneeResolverFunc func(ctx context.Context, groupID string, inst *store.Instance) (string, error)

func (f AssigneeResolverFunc) ResolveGroup(ctx context.Context, groupID string, inst *store.Instance) (string, error) {
	return f(ctx, groupID, inst)
}

// createTask writes a pending task for a human-task node, records a
// task_created history entry and returns the notification to send once the
// transaction commits. Repeated visits to a node create a new task each time.
func (e *Engine) createTask(ctx context.Context, tx store.Tx, inst *store.Instance, node *schema.Node, actorID string, now time.Time) (*store.Task, notify.Notification, error) {
	if node.Kind != schema.NodeKindHumanTask {
		return nil, notify.Notification{}, schema.NewErrorf(schema.ErrCodeDefinition,
			"node %q is %s, tasks are only created for human_task nodes", node.ID, node.Kind).
			WithInstance(inst.ID)
	}

	task := &store.Task{
		ID:            uuid.New().String(),
		InstanceID:    inst.ID,
		NodeID:        node.ID,
		Name:          node.DisplayName(),
		Status:        schema.TaskStatusPending,
		AssigneeUser:  node.Assignee.UserID,
		AssigneeGroup: node.Assignee.GroupID,
		CreatedAt:     now,
	}
	if d, ok := schema.SLADuration(node.SLAHours); ok {
		due := now.Add(d)
		task.DueAt = &due
	}
	if task.AssigneeUser == "" && task.AssigneeGroup != "" && e.resolver != nil {
		userID, err := e.resolver.ResolveGroup(ctx, task.AssigneeGroup, inst)
		if err != nil {
			e.logger.WarnContext(ctx, "assignee resolution failed",
				"group_id", task.AssigneeGroup, "error", err)
		} else {
			task.AssigneeUser = userID
		}
	}

	if err := tx.CreateTask(ctx, task); err != nil {
		return nil, notify.Notification{}, err
	}

	details := map[string]any{"task_id": task.ID}
	if task.AssigneeUser != "" {
		details["assignee_user"] = task.AssigneeUser
	}
	if task.AssigneeGroup != "" {
		details["assignee_group"] = task.AssigneeGroup
	}
	if task.DueAt != nil {
		details["due_at"] = task.DueAt.Format(time.RFC3339)
	}
	if err := appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionTaskCreated, "", node.ID, actorID, now), details); err != nil {
		return nil, notify.Notification{}, err
	}

	n := e.notification(schema.EventTaskCreated, inst, actorID, now)
	n.NodeID = node.ID
	n.TaskID = task.ID
	n.AssigneeUser = task.AssigneeUser
	n.AssigneeGroup = task.AssigneeGroup
	if task.DueAt != nil {
		n.Payload = map[string]any{"due_at": task.DueAt.Format(time.RFC3339)}
	}
	return task, n, nil
}
