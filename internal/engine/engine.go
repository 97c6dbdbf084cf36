// Package engine runs process instances: it starts them, moves them along
// the definition graph, manages their human tasks and cancels them.
//
// Every mutating operation reads the instance, computes a plan and then
// commits it in one transaction guarded by the instance version. A
// concurrent writer makes the loser fail with CONCURRENT_MODIFICATION; see
// RetryOnConflict.
package engine

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/graph"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/validation"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// StartRequest starts an instance of a definition for one business entity.
type StartRequest struct {
	DefinitionID string         `json:"definition_id"`
	EntityKind   string         `json:"entity_kind,omitempty"`
	EntityID     string         `json:"entity_id"`
	Variables    map[string]any `json:"variables,omitempty"`
	ActorID      string         `json:"actor_id"`
}

// AdvanceRequest moves an instance along its graph. Variables are merged
// into the instance before transitions are evaluated.
type AdvanceRequest struct {
	InstanceID string         `json:"instance_id"`
	ActorID    string         `json:"actor_id"`
	Outcome    string         `json:"outcome,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// CancelRequest terminates an instance.
type CancelRequest struct {
	InstanceID string `json:"instance_id"`
	ActorID    string `json:"actor_id"`
	Reason     string `json:"reason,omitempty"`
}

// DefineResult is a stored definition plus the advisory issues found while
// validating it.
type DefineResult struct {
	Definition *schema.ProcessDefinition `json:"definition"`
	Warnings   []schema.ValidationIssue  `json:"warnings,omitempty"`
}

// Config holds the optional collaborators of an Engine.
type Config struct {
	// Definitions overrides where definitions are read from, typically a
	// store.CachedDefinitions wrapping the store. Nil uses the store.
	Definitions store.DefinitionStore
	// Validator checks definitions and start variables. Nil builds a
	// validation.ProcessValidator.
	Validator *validation.ProcessValidator
	// Resolver resolves group assignees to users. Nil keeps group-only tasks.
	Resolver AssigneeResolver
	// Sink receives notifications after commit. Nil discards them.
	Sink           notify.Sink
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
	// Clock is used for every timestamp the engine writes. Nil is time.Now.
	Clock func() time.Time
}

// Engine is the instance lifecycle manager. It is safe for concurrent use;
// the actor of each operation is always passed in the request.
type Engine struct {
	store       store.Store
	definitions store.DefinitionStore
	validator   *validation.ProcessValidator
	resolver    AssigneeResolver
	sink        notify.Sink
	tracer      trace.Tracer
	logger      *slog.Logger
	clock       func() time.Time
}

// New creates an Engine over s.
func New(s store.Store, cfg Config) (*Engine, error) {
	e := &Engine{
		store:       s,
		definitions: cfg.Definitions,
		validator:   cfg.Validator,
		resolver:    cfg.Resolver,
		sink:        cfg.Sink,
		logger:      logging.OrDefault(cfg.Logger),
		clock:       cfg.Clock,
	}
	if e.definitions == nil {
		e.definitions = s
	}
	if e.validator == nil {
		v, err := validation.NewProcessValidator()
		if err != nil {
			return nil, err
		}
		e.validator = v
	}
	if e.sink == nil {
		e.sink = notify.Discard
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	e.tracer = tp.Tracer("github.com/JineeshTS/GanakysPortal-sub004/internal/engine")
	if e.clock == nil {
		e.clock = time.Now
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// --- Definitions ---

// DefineProcess validates def and stores it as a new immutable version of
// its name. Warnings never block registration.
func (e *Engine) DefineProcess(ctx context.Context, def *schema.ProcessDefinition, actorID string) (_ *DefineResult, err error) {
	ctx, finish := e.begin(ctx, "define", "", actorID)
	defer func() { finish(err) }()

	result := e.validator.Validate(def)
	if !result.Valid() {
		return nil, result.ToError(schema.ErrCodeDefinition)
	}

	stored := *def
	stored.ID = ""
	stored.Version = 0
	stored.CreatedBy = actorID
	stored.CreatedAt = e.now()
	if err := e.definitions.CreateDefinition(ctx, &stored); err != nil {
		return nil, storeError(err, "", "store definition")
	}

	e.logger.InfoContext(ctx, "process defined",
		"definition_id", stored.ID, "name", stored.Name, "version", stored.Version,
		"warnings", len(result.Warnings))
	return &DefineResult{Definition: &stored, Warnings: result.Warnings}, nil
}

// GetDefinition returns one stored definition version.
func (e *Engine) GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error) {
	def, err := e.definitions.GetDefinition(ctx, id)
	return def, storeError(err, "", "get definition")
}

// LatestDefinition returns the highest version registered under name.
func (e *Engine) LatestDefinition(ctx context.Context, name string) (*schema.ProcessDefinition, error) {
	def, err := e.definitions.GetLatestDefinition(ctx, name)
	return def, storeError(err, "", "get latest definition")
}

// ListDefinitions lists stored definitions.
func (e *Engine) ListDefinitions(ctx context.Context, filter store.DefinitionFilter) ([]*schema.ProcessDefinition, error) {
	defs, err := e.definitions.ListDefinitions(ctx, filter)
	return defs, storeError(err, "", "list definitions")
}

// --- Lifecycle ---

// Start creates an in-progress instance positioned on the definition's start
// node, with a task when that node is a human task.
func (e *Engine) Start(ctx context.Context, req StartRequest) (_ *store.Instance, err error) {
	instanceID := uuid.New().String()
	ctx, finish := e.begin(ctx, "start", instanceID, req.ActorID)
	defer func() { finish(err) }()

	if req.DefinitionID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "definition_id is required")
	}
	if req.EntityID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "entity_id is required")
	}

	def, err := e.definitions.GetDefinition(ctx, req.DefinitionID)
	if err != nil {
		return nil, storeError(err, "", "get definition")
	}
	if req.EntityKind != "" && req.EntityKind != def.EntityKind {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"definition %q automates %q, not %q", def.ID, def.EntityKind, req.EntityKind)
	}

	start, err := graph.StartNode(def)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition,
			"definition %q has no valid start node", def.ID).WithCause(err)
	}
	if err := e.validator.ValidateVariables(req.Variables, def.VariablesSchema); err != nil {
		return nil, err
	}

	now := e.now()
	inst := &store.Instance{
		ID:           instanceID,
		DefinitionID: def.ID,
		EntityKind:   def.EntityKind,
		EntityID:     req.EntityID,
		Status:       schema.InstanceStatusInProgress,
		CurrentNode:  start.ID,
		Variables:    maps.Clone(req.Variables),
		StartedBy:    req.ActorID,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if inst.Variables == nil {
		inst.Variables = map[string]any{}
	}
	if d, ok := schema.SLADuration(def.SLAHours); ok {
		due := now.Add(d)
		inst.SLADueAt = &due
	}

	var notes []notify.Notification
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		notes = notes[:0]
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		details := map[string]any{"definition_id": def.ID, "definition_version": def.Version}
		if err := appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionStarted, "", start.ID, req.ActorID, now), details); err != nil {
			return err
		}
		if start.Kind == schema.NodeKindHumanTask {
			_, n, err := e.createTask(ctx, tx, inst, start, req.ActorID, now)
			if err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, inst.ID, "start instance")
	}

	e.logger.InfoContext(ctx, "instance started",
		"definition_id", def.ID, "entity_id", inst.EntityID, "node_id", start.ID)
	e.afterCommit(ctx, inst, notes)
	return inst, nil
}

// Advance moves an in-progress instance along the first matching
// transition. When nothing matches the instance stays where it is and no
// history is written.
func (e *Engine) Advance(ctx context.Context, req AdvanceRequest) (_ *store.Instance, err error) {
	ctx, finish := e.begin(ctx, "advance", req.InstanceID, req.ActorID)
	defer func() { finish(err) }()

	inst, def, err := e.loadActive(ctx, req.InstanceID, schema.InstanceStatusInProgress)
	if err != nil {
		return nil, err
	}
	expected := inst.Version
	varsChanged := mergeVariables(inst, req.Variables)

	plan, err := e.planAdvance(ctx, def, inst, req.Outcome)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		e.logger.InfoContext(ctx, "no transition matched", "node_id", inst.CurrentNode, "outcome", req.Outcome)
		if !varsChanged {
			return inst, nil
		}
		inst.UpdatedAt = e.now()
		err = e.store.WithTx(ctx, func(tx store.Tx) error {
			return tx.UpdateInstance(ctx, inst, expected)
		})
		if err != nil {
			return nil, storeError(err, inst.ID, "update variables")
		}
		return inst, nil
	}

	inst.UpdatedAt = e.now()
	plan.applyTo(inst)
	if err := checkInstanceTransition(inst.ID, schema.InstanceStatusInProgress, inst.Status); err != nil {
		return nil, err
	}

	var notes []notify.Notification
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateInstance(ctx, inst, expected); err != nil {
			return err
		}
		var err error
		notes, err = e.record(ctx, tx, inst, plan, req.ActorID, req.Outcome)
		return err
	})
	if err != nil {
		return nil, storeError(err, inst.ID, "advance instance")
	}

	e.logger.InfoContext(ctx, "instance advanced",
		"from", plan.from.ID, "to", inst.CurrentNode, "status", inst.Status)
	e.afterCommit(ctx, inst, notes)
	return inst, nil
}

// Cancel terminates an in-progress instance and cancels its open tasks.
// Cancelling a terminal instance is a successful no-op.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (_ *store.Instance, err error) {
	ctx, finish := e.begin(ctx, "cancel", req.InstanceID, req.ActorID)
	defer func() { finish(err) }()

	inst, err := e.store.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, storeError(err, req.InstanceID, "get instance")
	}
	if inst.Status.IsTerminal() {
		return inst, nil
	}
	if err := checkInstanceTransition(inst.ID, inst.Status, schema.InstanceStatusCancelled); err != nil {
		return nil, err
	}

	expected := inst.Version
	now := e.now()
	inst.Status = schema.InstanceStatusCancelled
	inst.CompletedAt = &now
	inst.UpdatedAt = now

	var cancelled []string
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateInstance(ctx, inst, expected); err != nil {
			return err
		}
		ids, err := tx.CancelOpenTasks(ctx, inst.ID, now)
		if err != nil {
			return err
		}
		cancelled = ids

		details := map[string]any{}
		if req.Reason != "" {
			details["reason"] = req.Reason
		}
		if len(ids) > 0 {
			details["cancelled_tasks"] = ids
		}
		return appendHistory(ctx, tx, historyEntry(inst.ID, schema.ActionCancelled, inst.CurrentNode, "", req.ActorID, now), details)
	})
	if err != nil {
		return nil, storeError(err, inst.ID, "cancel instance")
	}

	e.logger.InfoContext(ctx, "instance cancelled", "reason", req.Reason, "cancelled_tasks", len(cancelled))
	n := e.notification(schema.EventInstanceCancelled, inst, req.ActorID, now)
	n.NodeID = inst.CurrentNode
	if req.Reason != "" {
		n.Payload = map[string]any{"reason": req.Reason}
	}
	e.afterCommit(ctx, inst, []notify.Notification{n})
	return inst, nil
}

// --- Reads ---

// Get returns the current state of an instance.
func (e *Engine) Get(ctx context.Context, id string) (*store.Instance, error) {
	inst, err := e.store.GetInstance(ctx, id)
	return inst, storeError(err, id, "get instance")
}

// List returns the instances matching filter.
func (e *Engine) List(ctx context.Context, filter store.InstanceFilter) ([]*store.Instance, error) {
	insts, err := e.store.ListInstances(ctx, filter)
	return insts, storeError(err, "", "list instances")
}

// History returns the audit trail of an instance in sequence order.
func (e *Engine) History(ctx context.Context, id string) ([]*store.HistoryEntry, error) {
	if _, err := e.store.GetInstance(ctx, id); err != nil {
		return nil, storeError(err, id, "get instance")
	}
	entries, err := e.store.ListHistory(ctx, id)
	return entries, storeError(err, id, "list history")
}

// --- helpers ---

// loadActive reads an instance and its definition, failing with
// INVALID_STATE unless the instance has the wanted status.
func (e *Engine) loadActive(ctx context.Context, id string, want schema.InstanceStatus) (*store.Instance, *schema.ProcessDefinition, error) {
	inst, err := e.store.GetInstance(ctx, id)
	if err != nil {
		return nil, nil, storeError(err, id, "get instance")
	}
	if inst.Status != want {
		return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidState,
			"instance is %s", inst.Status).
			WithInstance(inst.ID).
			WithDetails(map[string]any{"status": string(inst.Status)})
	}
	def, err := e.definitions.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, nil, storeError(err, inst.ID, "get definition")
	}
	return inst, def, nil
}

// mergeVariables overlays vars on the instance variables and reports
// whether anything was supplied.
func mergeVariables(inst *store.Instance, vars map[string]any) bool {
	if len(vars) == 0 {
		return false
	}
	if inst.Variables == nil {
		inst.Variables = make(map[string]any, len(vars))
	}
	maps.Copy(inst.Variables, vars)
	return true
}

func (e *Engine) notification(eventType string, inst *store.Instance, actorID string, at time.Time) notify.Notification {
	return notify.Notification{
		ID:           uuid.New().String(),
		Type:         eventType,
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		ActorID:      actorID,
		OccurredAt:   at,
	}
}

// afterCommit records metrics for committed effects and hands notifications
// to the sink. Delivery problems are logged and never reach the caller.
func (e *Engine) afterCommit(ctx context.Context, inst *store.Instance, notes []notify.Notification) {
	if inst.Status.IsTerminal() {
		metrics.RecordInstanceFinished(string(inst.Status))
	}
	for _, n := range notes {
		if n.Type == schema.EventTaskCreated {
			metrics.RecordTaskCreated(n.NodeID)
		}
		if err := e.sink.Publish(ctx, n); err != nil {
			e.logger.WarnContext(ctx, "notification publish failed",
				"type", n.Type, "notification_id", n.ID, "error", err)
		}
	}
}
