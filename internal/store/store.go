package store

import (
	"context"
	"time"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// DefinitionStore persists immutable, versioned process definitions.
type DefinitionStore interface {
	// CreateDefinition assigns a fresh ID and the next version for def.Name.
	CreateDefinition(ctx context.Context, def *schema.ProcessDefinition) error
	GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error)
	GetLatestDefinition(ctx context.Context, name string) (*schema.ProcessDefinition, error)
	ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*schema.ProcessDefinition, error)
}

// Reader holds the queries available both inside and outside a transaction.
type Reader interface {
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	ListHistory(ctx context.Context, instanceID string) ([]*HistoryEntry, error)
}

// Tx is the write surface of one lifecycle operation. Everything written
// through a Tx commits or rolls back together.
type Tx interface {
	Reader

	CreateInstance(ctx context.Context, inst *Instance) error
	// UpdateInstance writes inst only if the stored version equals
	// expectedVersion, then sets inst.Version to expectedVersion+1.
	// A stale version yields CONCURRENT_MODIFICATION.
	UpdateInstance(ctx context.Context, inst *Instance, expectedVersion int64) error

	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	// CancelOpenTasks cancels every open task of the instance and returns their IDs.
	CancelOpenTasks(ctx context.Context, instanceID string, at time.Time) ([]string, error)

	// AppendHistory assigns entry.Sequence, the next number for its instance.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
}

// Store is the persistence contract of the engine.
// All implementations must be safe for concurrent use.
type Store interface {
	DefinitionStore
	Reader

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// RecordSLABreach remembers that an item breached its SLA. It returns
	// false when the breach was already recorded.
	RecordSLABreach(ctx context.Context, kind, id string, at time.Time) (bool, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
