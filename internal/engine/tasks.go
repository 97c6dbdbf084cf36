package engine

import (
	"context"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// TaskRequest identifies a task and the actor acting on it.
type TaskRequest struct {
	TaskID  string `json:"task_id"`
	ActorID string `json:"actor_id"`
}

// CompleteTaskRequest finishes a task. Variables are merged into the
// instance and Outcome drives the advance that follows.
type CompleteTaskRequest struct {
	TaskID    string         `json:"task_id"`
	ActorID   string         `json:"actor_id"`
	Outcome   string         `json:"outcome,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// TaskResult is a task after an operation together with its instance.
type TaskResult struct {
	Task     *store.Task     `json:"task"`
	Instance *store.Instance `json:"instance"`
}

// ClaimTask assigns a pending task to the acting user.
func (e *Engine) ClaimTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	return e.moveTask(ctx, "claim_task", req, schema.TaskStatusAssigned)
}

// StartTask marks a task as being worked on. An unassigned task is assigned
// to the acting user.
func (e *Engine) StartTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	return e.moveTask(ctx, "start_task", req, schema.TaskStatusInProgress)
}

func (e *Engine) moveTask(ctx context.Context, operation string, req TaskRequest, to schema.TaskStatus) (_ *TaskResult, err error) {
	ctx, finish := e.begin(ctx, operation, "", req.ActorID)
	defer func() { finish(err) }()

	if req.ActorID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "actor_id is required")
	}
	task, inst, err := e.loadTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if err := checkTaskTransition(task, to); err != nil {
		return nil, err
	}

	expected := inst.Version
	now := e.now()
	inst.UpdatedAt = now
	from := task.Status
	task.Status = to
	if to == schema.TaskStatusAssigned || task.AssigneeUser == "" {
		task.AssigneeUser = req.ActorID
	}

	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateInstance(ctx, inst, expected); err != nil {
			return err
		}
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		details := map[string]any{"task_id": task.ID, "from_status": string(from), "assignee_user": task.AssigneeUser}
		return appendHistory(ctx, tx, historyEntry(inst.ID, taskHistoryAction(to), task.NodeID, task.NodeID, req.ActorID, now), details)
	})
	if err != nil {
		return nil, storeError(err, inst.ID, operation)
	}
	return &TaskResult{Task: task, Instance: inst}, nil
}

// CompleteTask completes an open task, merges the supplied variables and
// advances the instance with the supplied outcome, all in one transaction.
// Completing a task that is not on the instance's current node records the
// completion without advancing.
func (e *Engine) CompleteTask(ctx context.Context, req CompleteTaskRequest) (_ *TaskResult, err error) {
	ctx, finish := e.begin(ctx, "complete_task", "", req.ActorID)
	defer func() { finish(err) }()

	task, inst, err := e.loadTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if err := checkTaskTransition(task, schema.TaskStatusCompleted); err != nil {
		return nil, err
	}
	def, err := e.definitions.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, storeError(err, inst.ID, "get definition")
	}

	expected := inst.Version
	now := e.now()
	inst.UpdatedAt = now
	mergeVariables(inst, req.Variables)

	from := task.Status
	task.Status = schema.TaskStatusCompleted
	task.CompletedAt = &now
	task.CompletedBy = req.ActorID

	var plan *advancePlan
	if task.NodeID == inst.CurrentNode {
		plan, err = e.planAdvance(ctx, def, inst, req.Outcome)
		if err != nil {
			return nil, err
		}
	}
	if plan != nil {
		plan.applyTo(inst)
	}

	var notes []notify.Notification
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateInstance(ctx, inst, expected); err != nil {
			return err
		}
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		details := map[string]any{"task_id": task.ID, "from_status": string(from)}
		if req.Outcome != "" {
			details[outcomeKey] = req.Outcome
		}
		if err := appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionTaskCompleted, task.NodeID, task.NodeID, req.ActorID, now), details); err != nil {
			return err
		}
		if plan == nil {
			return nil
		}
		var err error
		notes, err = e.record(ctx, tx, inst, plan, req.ActorID, req.Outcome)
		return err
	})
	if err != nil {
		return nil, storeError(err, inst.ID, "complete task")
	}

	e.logger.InfoContext(ctx, "task completed",
		"task_id", task.ID, "node_id", task.NodeID, "advanced", plan != nil, "status", inst.Status)
	e.afterCommit(ctx, inst, notes)
	return &TaskResult{Task: task, Instance: inst}, nil
}

// GetTask returns one task.
func (e *Engine) GetTask(ctx context.Context, id string) (*store.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	return task, storeError(err, "", "get task")
}

// ListTasks returns the tasks matching filter, e.g. a user's open work.
func (e *Engine) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	tasks, err := e.store.ListTasks(ctx, filter)
	return tasks, storeError(err, "", "list tasks")
}

// loadTask reads a task and its instance. Tasks of terminal instances are
// closed to further work.
func (e *Engine) loadTask(ctx context.Context, taskID string) (*store.Task, *store.Instance, error) {
	if taskID == "" {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "task_id is required")
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, storeError(err, "", "get task")
	}
	inst, err := e.store.GetInstance(ctx, task.InstanceID)
	if err != nil {
		return nil, nil, storeError(err, task.InstanceID, "get instance")
	}
	if inst.Status.IsTerminal() {
		return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidState,
			"instance is %s", inst.Status).
			WithInstance(inst.ID).
			WithDetails(map[string]any{"task_id": task.ID})
	}
	return task, inst, nil
}
