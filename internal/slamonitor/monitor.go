// Package slamonitor periodically looks for open tasks and in-progress
// instances whose SLA deadline has passed and announces each breach once.
// The monitor is advisory: it never changes instance or task state.
package slamonitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/logging"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// DefaultSchedule sweeps once a minute.
const DefaultSchedule = "@every 1m"

// Store is the subset of store.Store the monitor reads and writes.
type Store interface {
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error)
	ListInstances(ctx context.Context, filter store.InstanceFilter) ([]*store.Instance, error)
	RecordSLABreach(ctx context.Context, kind, id string, at time.Time) (bool, error)
}

// Config configures a Monitor.
type Config struct {
	// Schedule is a five-field cron expression or a descriptor such as "@every 30s".
	Schedule string
	Sink     notify.Sink
	Logger   *slog.Logger
	Clock    func() time.Time
}

// SweepResult counts the breaches announced by one sweep.
type SweepResult struct {
	Tasks     int `json:"tasks"`
	Instances int `json:"instances"`
}

// Monitor runs SLA sweeps on a cron schedule.
type Monitor struct {
	store    Store
	sink     notify.Sink
	logger   *slog.Logger
	clock    func() time.Time
	schedule cron.Schedule
	spec     string

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the schedule and returns a stopped Monitor.
func New(s Store, cfg Config) (*Monitor, error) {
	if s == nil {
		return nil, fmt.Errorf("slamonitor: store is required")
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("slamonitor: parse schedule %q: %w", spec, err)
	}
	m := &Monitor{
		store:    s,
		sink:     cfg.Sink,
		logger:   logging.OrDefault(cfg.Logger),
		clock:    cfg.Clock,
		schedule: sched,
		spec:     spec,
	}
	if m.sink == nil {
		m.sink = notify.Discard
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m, nil
}

// NextRun reports when the schedule fires after from.
func (m *Monitor) NextRun(from time.Time) time.Time {
	return m.schedule.Next(from)
}

// Start launches the cron loop. Overlapping sweeps are skipped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return fmt.Errorf("slamonitor: already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(m.schedule, cron.FuncJob(func() {
		if _, err := m.Sweep(sweepCtx); err != nil && sweepCtx.Err() == nil {
			m.logger.Error("sla sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()

	m.cron = c
	m.cancel = cancel
	m.logger.Info("sla monitor started", slog.String("schedule", m.spec))
	return nil
}

// Stop cancels any running sweep and waits for it to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron == nil {
		return
	}

	m.cancel()
	<-m.cron.Stop().Done()
	m.cron = nil
	m.cancel = nil
	m.logger.Info("sla monitor stopped")
}

// Sweep announces every task and instance that is past its deadline and has
// not been announced before.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.clock().UTC()

	tasks, err := m.store.ListTasks(ctx, store.TaskFilter{
		Statuses:  schema.OpenTaskStatuses,
		DueBefore: &now,
	})
	if err != nil {
		return res, fmt.Errorf("list overdue tasks: %w", err)
	}
	for _, t := range tasks {
		fresh, err := m.store.RecordSLABreach(ctx, store.BreachKindTask, t.ID, now)
		if err != nil {
			return res, fmt.Errorf("record task breach %s: %w", t.ID, err)
		}
		if !fresh {
			continue
		}
		res.Tasks++
		m.announce(ctx, taskBreach(t, now))
	}

	active := schema.InstanceStatusInProgress
	instances, err := m.store.ListInstances(ctx, store.InstanceFilter{
		Status:       &active,
		SLADueBefore: &now,
	})
	if err != nil {
		return res, fmt.Errorf("list overdue instances: %w", err)
	}
	for _, inst := range instances {
		fresh, err := m.store.RecordSLABreach(ctx, store.BreachKindInstance, inst.ID, now)
		if err != nil {
			return res, fmt.Errorf("record instance breach %s: %w", inst.ID, err)
		}
		if !fresh {
			continue
		}
		res.Instances++
		m.announce(ctx, instanceBreach(inst, now))
	}

	if res.Tasks+res.Instances > 0 {
		m.logger.Info("sla breaches detected",
			slog.Int("tasks", res.Tasks),
			slog.Int("instances", res.Instances),
		)
	}
	return res, nil
}

func (m *Monitor) announce(ctx context.Context, n notify.Notification) {
	metrics.RecordSLABreach(n.Payload["kind"].(string))
	if err := m.sink.Publish(ctx, n); err != nil {
		m.logger.Warn("sla notification publish failed",
			slog.String("instance_id", n.InstanceID),
			slog.String("error", err.Error()),
		)
	}
}

func taskBreach(t *store.Task, now time.Time) notify.Notification {
	return notify.Notification{
		ID:            uuid.New().String(),
		Type:          schema.EventSLABreached,
		InstanceID:    t.InstanceID,
		NodeID:        t.NodeID,
		TaskID:        t.ID,
		AssigneeUser:  t.AssigneeUser,
		AssigneeGroup: t.AssigneeGroup,
		Payload: map[string]any{
			"kind":   store.BreachKindTask,
			"due_at": t.DueAt.Format(time.RFC3339),
		},
		OccurredAt: now,
	}
}

func instanceBreach(inst *store.Instance, now time.Time) notify.Notification {
	return notify.Notification{
		ID:           uuid.New().String(),
		Type:         schema.EventSLABreached,
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		NodeID:       inst.CurrentNode,
		Payload: map[string]any{
			"kind":   store.BreachKindInstance,
			"due_at": inst.SLADueAt.Format(time.RFC3339),
		},
		OccurredAt: now,
	}
}
