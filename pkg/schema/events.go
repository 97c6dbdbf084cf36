package schema

// History action constants for the instance audit trail.
const (
	ActionStarted       = "started"
	ActionTransition    = "transition"
	ActionCompleted     = "completed"
	ActionCancelled     = "cancelled"
	ActionTaskCreated   = "task_created"
	ActionTaskClaimed   = "task_claimed"
	ActionTaskStarted   = "task_started"
	ActionTaskCompleted = "task_completed"
)

// Notification event types published after a lifecycle operation commits.
const (
	EventTaskCreated       = "task_created"
	EventInstanceCompleted = "instance_completed"
	EventInstanceCancelled = "instance_cancelled"
	EventSLABreached       = "sla_breached"
)

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle operation may change the instance.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsOpen reports whether the task still awaits work.
func (s TaskStatus) IsOpen() bool {
	return s == TaskStatusPending || s == TaskStatusAssigned || s == TaskStatusInProgress
}

// OpenTaskStatuses lists every non-terminal task status.
var OpenTaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress}
