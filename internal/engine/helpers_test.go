package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/notify"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "engine.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

// recordingSink keeps every published notification.
type recordingSink struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recordingSink) Publish(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Type
	}
	return out
}

type testEnv struct {
	engine *Engine
	store  *store.LibSQLStore
	sink   *recordingSink
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	s := newTestStore(t)
	sink := &recordingSink{}
	cfg := Config{
		Sink:  sink,
		Clock: func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := New(s, cfg)
	require.NoError(t, err)
	return &testEnv{engine: e, store: s, sink: sink}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// expenseDefinition routes an expense by amount: large ones to the
// director, medium ones to a manager group, small ones straight to approved.
// Transitions are declared out of priority order on purpose.
func expenseDefinition() *schema.ProcessDefinition {
	return &schema.ProcessDefinition{
		Name:            "expense-claim",
		EntityKind:      "expense",
		SLAHours:        floatPtr(48),
		VariablesSchema: []byte(`{"type":"object","required":["amount"],"properties":{"amount":{"type":"number"}}}`),
		Nodes: []schema.Node{
			{ID: "submit", Kind: schema.NodeKindHumanTask, IsStart: true, Assignee: schema.AssigneeSpec{UserID: "employee"}},
			{ID: "manager", Kind: schema.NodeKindHumanTask, Assignee: schema.AssigneeSpec{GroupID: "managers"}, SLAHours: floatPtr(8)},
			{ID: "director", Kind: schema.NodeKindHumanTask, Assignee: schema.AssigneeSpec{UserID: "cfo"}},
			{ID: "approved", Kind: schema.NodeKindTerminal, IsEnd: true},
			{ID: "rejected", Kind: schema.NodeKindTerminal, IsEnd: true},
		},
		Transitions: []schema.Transition{
			{ID: "to-approved", From: "submit", To: "approved", IsDefault: true},
			{ID: "to-manager", From: "submit", To: "manager", Priority: 2, Condition: strPtr("amount > 100")},
			{ID: "to-director", From: "submit", To: "director", Priority: 1, Condition: strPtr("amount > 1000")},
			{ID: "manager-approve", From: "manager", To: "approved", Priority: 1, Condition: strPtr("outcome == 'approve'")},
			{ID: "manager-reject", From: "manager", To: "rejected", Priority: 2, Condition: strPtr("outcome == 'reject'")},
			{ID: "director-approve", From: "director", To: "approved", Condition: strPtr("outcome == 'approve'")},
			{ID: "director-reject", From: "director", To: "rejected", Condition: strPtr("outcome == 'reject'")},
		},
	}
}

func (env *testEnv) define(t *testing.T, def *schema.ProcessDefinition) *schema.ProcessDefinition {
	t.Helper()
	res, err := env.engine.DefineProcess(context.Background(), def, "admin")
	require.NoError(t, err)
	return res.Definition
}

// defineRaw stores def without validation, for definitions the validator
// would reject.
func (env *testEnv) defineRaw(t *testing.T, def *schema.ProcessDefinition) *schema.ProcessDefinition {
	t.Helper()
	require.NoError(t, env.store.CreateDefinition(context.Background(), def))
	return def
}

func (env *testEnv) start(t *testing.T, def *schema.ProcessDefinition, vars map[string]any) *store.Instance {
	t.Helper()
	inst, err := env.engine.Start(context.Background(), StartRequest{
		DefinitionID: def.ID,
		EntityID:     "exp-1",
		Variables:    vars,
		ActorID:      "employee",
	})
	require.NoError(t, err)
	return inst
}

func (env *testEnv) history(t *testing.T, instanceID string) []*store.HistoryEntry {
	t.Helper()
	entries, err := env.store.ListHistory(context.Background(), instanceID)
	require.NoError(t, err)
	return entries
}

func (env *testEnv) tasks(t *testing.T, instanceID string) []*store.Task {
	t.Helper()
	tasks, err := env.store.ListTasks(context.Background(), store.TaskFilter{InstanceID: instanceID})
	require.NoError(t, err)
	return tasks
}

func actions(entries []*store.HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}
