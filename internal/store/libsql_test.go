package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func testDefinition(name string) *schema.ProcessDefinition {
	return &schema.ProcessDefinition{
		Name:       name,
		EntityKind: "leave_request",
		Nodes: []schema.Node{
			{ID: "submit", Kind: schema.NodeKindHumanTask, IsStart: true, Assignee: schema.AssigneeSpec{UserID: "u1"}},
			{ID: "done", Kind: schema.NodeKindTerminal, IsEnd: true},
		},
		Transitions: []schema.Transition{{From: "submit", To: "done"}},
	}
}

func seedDefinition(t *testing.T, s *LibSQLStore) *schema.ProcessDefinition {
	t.Helper()
	def := testDefinition("leave-approval")
	require.NoError(t, s.CreateDefinition(context.Background(), def))
	return def
}

func seedInstance(t *testing.T, s *LibSQLStore, def *schema.ProcessDefinition) *Instance {
	t.Helper()
	inst := &Instance{
		ID:           uuid.New().String(),
		DefinitionID: def.ID,
		EntityKind:   def.EntityKind,
		EntityID:     "req-1",
		Status:       schema.InstanceStatusInProgress,
		CurrentNode:  "submit",
		Variables:    map[string]any{"days": 3},
		StartedBy:    "alice",
	}
	require.NoError(t, s.WithTx(context.Background(), func(tx Tx) error {
		return tx.CreateInstance(context.Background(), inst)
	}))
	return inst
}

// --- Definitions ---

func TestCreateDefinition_Versions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := testDefinition("expense")
	require.NoError(t, s.CreateDefinition(ctx, v1))
	v2 := testDefinition("expense")
	v2.Description = "second revision"
	require.NoError(t, s.CreateDefinition(ctx, v2))
	other := testDefinition("travel")
	require.NoError(t, s.CreateDefinition(ctx, other))

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 1, other.Version)
	assert.NotEqual(t, v1.ID, v2.ID)

	got, err := s.GetDefinition(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "expense", got.Name)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, got.Description, "stored versions are never rewritten")
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "u1", got.Nodes[0].Assignee.UserID)

	latest, err := s.GetLatestDefinition(ctx, "expense")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
	assert.Equal(t, "second revision", latest.Description)
}

func TestGetDefinition_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDefinition(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	_, err = s.GetLatestDefinition(context.Background(), "missing")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListDefinitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"a", "a", "b"} {
		require.NoError(t, s.CreateDefinition(ctx, testDefinition(name)))
	}

	all, err := s.ListDefinitions(ctx, DefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := s.ListDefinitions(ctx, DefinitionFilter{LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Name)
	assert.Equal(t, 2, latest[0].Version)

	named, err := s.ListDefinitions(ctx, DefinitionFilter{Name: "b"})
	require.NoError(t, err)
	assert.Len(t, named, 1)
}

// --- Instances ---

func TestCreateAndGetInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
	assert.Equal(t, schema.InstanceStatusInProgress, got.Status)
	assert.Equal(t, "submit", got.CurrentNode)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, float64(3), got.Variables["days"])
	assert.Equal(t, "alice", got.StartedBy)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.SLADueAt)
}

func TestGetInstance_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetInstance(context.Background(), "nope")
	require.Error(t, err)
	var engErr *schema.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, schema.ErrCodeNotFound, engErr.Code)
}

func TestUpdateInstance_CompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))

	first := inst.Clone()
	second := inst.Clone()

	first.CurrentNode = "done"
	first.Status = schema.InstanceStatusCompleted
	now := time.Now().UTC()
	first.CompletedAt = &now
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateInstance(ctx, first, 1)
	}))
	assert.Equal(t, int64(2), first.Version)

	second.Variables["days"] = 10
	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateInstance(ctx, second, 1)
	})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConcurrentModification))

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, schema.InstanceStatusCompleted, got.Status)
	assert.Equal(t, float64(3), got.Variables["days"])
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateInstance_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateInstance(ctx, &Instance{ID: "ghost"}, 1)
	})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListInstances_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s)

	a := seedInstance(t, s, def)
	b := seedInstance(t, s, def)
	b.Status = schema.InstanceStatusCancelled
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.UpdateInstance(ctx, b, 1) }))

	all, err := s.ListInstances(ctx, InstanceFilter{DefinitionID: def.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	inProgress := schema.InstanceStatusInProgress
	open, err := s.ListInstances(ctx, InstanceFilter{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, a.ID, open[0].ID)

	byEntity, err := s.ListInstances(ctx, InstanceFilter{EntityKind: "leave_request", EntityID: "req-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byEntity, 1)
}

func TestListInstances_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = seedInstance(t, s, def).ID
	}

	rest, err := s.ListInstances(ctx, InstanceFilter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, ids[1], rest[0].ID)
	assert.Equal(t, ids[2], rest[1].ID)

	middle, err := s.ListInstances(ctx, InstanceFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, middle, 1)
	assert.Equal(t, ids[1], middle[0].ID)

	past, err := s.ListInstances(ctx, InstanceFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestLimitClause(t *testing.T) {
	tests := []struct {
		limit, offset int
		want          string
	}{
		{0, 0, ""},
		{10, 0, " LIMIT 10 OFFSET 0"},
		{10, 20, " LIMIT 10 OFFSET 20"},
		{0, 20, " LIMIT -1 OFFSET 20"},
		{0, -3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, limitClause(tt.limit, tt.offset), "limit=%d offset=%d", tt.limit, tt.offset)
	}
}

func TestListInstances_SLADueBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s)
	now := time.Now().UTC()

	overdue := seedInstance(t, s, def)
	past := now.Add(-time.Hour)
	overdue.SLADueAt = &past
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.UpdateInstance(ctx, overdue, 1) }))

	future := seedInstance(t, s, def)
	later := now.Add(time.Hour)
	future.SLADueAt = &later
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.UpdateInstance(ctx, future, 1) }))

	seedInstance(t, s, def)

	got, err := s.ListInstances(ctx, InstanceFilter{SLADueBefore: &now})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

// --- Tasks ---

func TestTasks_CreateUpdateList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))
	due := time.Now().UTC().Add(4 * time.Hour)

	task := &Task{
		InstanceID:    inst.ID,
		NodeID:        "submit",
		Name:          "Submit request",
		Status:        schema.TaskStatusPending,
		AssigneeGroup: "managers",
		DueAt:         &due,
	}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.CreateTask(ctx, task) }))
	require.NotEmpty(t, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusPending, got.Status)
	assert.Equal(t, "managers", got.AssigneeGroup)
	assert.Empty(t, got.AssigneeUser)
	require.NotNil(t, got.DueAt)
	assert.WithinDuration(t, due, *got.DueAt, time.Second)

	got.Status = schema.TaskStatusAssigned
	got.AssigneeUser = "bob"
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.UpdateTask(ctx, got) }))

	list, err := s.ListTasks(ctx, TaskFilter{AssigneeUser: "bob"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, schema.TaskStatusAssigned, list[0].Status)

	none, err := s.ListTasks(ctx, TaskFilter{Statuses: []schema.TaskStatus{schema.TaskStatusCompleted}})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.GetTask(ctx, "missing")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestTasks_DueBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for _, due := range []*time.Time{&past, &future, nil} {
			if err := tx.CreateTask(ctx, &Task{InstanceID: inst.ID, NodeID: "submit", Name: "t", Status: schema.TaskStatusPending, DueAt: due}); err != nil {
				return err
			}
		}
		return nil
	}))

	overdue, err := s.ListTasks(ctx, TaskFilter{DueBefore: &now, Statuses: schema.OpenTaskStatuses})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.WithinDuration(t, past, *overdue[0].DueAt, time.Second)
}

func TestCancelOpenTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))

	var open, done Task
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		open = Task{InstanceID: inst.ID, NodeID: "submit", Name: "open", Status: schema.TaskStatusInProgress}
		done = Task{InstanceID: inst.ID, NodeID: "submit", Name: "done", Status: schema.TaskStatusCompleted}
		if err := tx.CreateTask(ctx, &open); err != nil {
			return err
		}
		return tx.CreateTask(ctx, &done)
	}))

	var ids []string
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.CancelOpenTasks(ctx, inst.ID, time.Now().UTC())
		return err
	}))
	assert.Equal(t, []string{open.ID}, ids)

	got, err := s.GetTask(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)

	got, err = s.GetTask(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCompleted, got.Status)
}

// --- History ---

func TestAppendHistory_Sequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s)
	a := seedInstance(t, s, def)
	b := seedInstance(t, s, def)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for _, e := range []*HistoryEntry{
			{InstanceID: a.ID, Action: schema.ActionStarted, ToNode: "submit", ActorID: "alice"},
			{InstanceID: b.ID, Action: schema.ActionStarted, ToNode: "submit"},
			{InstanceID: a.ID, Action: schema.ActionTransition, FromNode: "submit", ToNode: "done",
				Details: json.RawMessage(`{"outcome":"approve"}`)},
		} {
			if err := tx.AppendHistory(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	hist, err := s.ListHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(1), hist[0].Sequence)
	assert.Equal(t, int64(2), hist[1].Sequence)
	assert.Equal(t, schema.ActionStarted, hist[0].Action)
	assert.Equal(t, "alice", hist[0].ActorID)
	assert.Equal(t, "submit", hist[1].FromNode)
	assert.JSONEq(t, `{"outcome":"approve"}`, string(hist[1].Details))

	histB, err := s.ListHistory(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, histB, 1)
	assert.Equal(t, int64(1), histB[0].Sequence)
}

func TestWithTx_RollbackLeavesNoTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s, seedDefinition(t, s))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.AppendHistory(ctx, &HistoryEntry{InstanceID: inst.ID, Action: schema.ActionTransition}); err != nil {
			return err
		}
		moved := inst.Clone()
		moved.CurrentNode = "done"
		if err := tx.UpdateInstance(ctx, moved, inst.Version); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	hist, err := s.ListHistory(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "submit", got.CurrentNode)
	assert.Equal(t, int64(1), got.Version)
}

func TestRecordSLABreach_Once(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordSLABreach(ctx, BreachKindTask, "t-1", time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.RecordSLABreach(ctx, BreachKindTask, "t-1", time.Now())
	require.NoError(t, err)
	assert.False(t, again)

	other, err := s.RecordSLABreach(ctx, BreachKindInstance, "t-1", time.Now())
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment\n;\nCREATE INDEX i ON a(x);")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}
