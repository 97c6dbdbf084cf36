package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	sqlOps
	db *sql.DB
}

// sqlOps holds the instance, task and history statements shared by the
// store and its transactions.
type sqlOps struct {
	q queryer
}

type libsqlTx struct {
	sqlOps
}

var (
	_ Store = (*LibSQLStore)(nil)
	_ Tx    = (*libsqlTx)(nil)
)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowengine.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	// A single connection serializes writers; optimistic versions catch
	// interleaved read-modify-write cycles.
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{sqlOps: sqlOps{q: db}, db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// WithTx runs fn inside a database transaction. Any error from fn, or a
// panic, rolls the transaction back.
func (s *LibSQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&libsqlTx{sqlOps{q: sqlTx}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecordSLABreach inserts a breach marker unless one exists.
func (s *LibSQLStore) RecordSLABreach(ctx context.Context, kind, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sla_breaches (kind, item_id, detected_at) VALUES (?, ?, ?)`,
		kind, id, timeOrNow(at),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- Definitions ---

// CreateDefinition stores def as the next version of def.Name.
// ID, Version and CreatedAt are assigned here.
func (s *LibSQLStore) CreateDefinition(ctx context.Context, def *schema.ProcessDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM definitions WHERE name = ?`, def.Name,
	).Scan(&next); err != nil {
		return fmt.Errorf("next definition version: %w", err)
	}

	def.ID = uuid.New().String()
	def.Version = next
	def.CreatedAt = timeOrNow(def.CreatedAt)

	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO definitions (id, name, version, entity_kind, body, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Name, def.Version, def.EntityKind, string(body), nullStr(def.CreatedBy), def.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM definitions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("definition", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeDefinition(body)
}

func (s *LibSQLStore) GetLatestDefinition(ctx context.Context, name string) (*schema.ProcessDefinition, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM definitions WHERE name = ? ORDER BY version DESC LIMIT 1`, name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("definition", name)
	}
	if err != nil {
		return nil, err
	}
	return decodeDefinition(body)
}

func (s *LibSQLStore) ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*schema.ProcessDefinition, error) {
	query := `SELECT body FROM definitions d`
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "d.name = ?")
		args = append(args, filter.Name)
	}
	if filter.EntityKind != "" {
		where = append(where, "d.entity_kind = ?")
		args = append(args, filter.EntityKind)
	}
	if filter.LatestOnly {
		where = append(where, "d.version = (SELECT MAX(version) FROM definitions d2 WHERE d2.name = d.name)")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.name, d.version DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*schema.ProcessDefinition
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		def, err := decodeDefinition(body)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func decodeDefinition(body string) (*schema.ProcessDefinition, error) {
	def := &schema.ProcessDefinition{}
	if err := json.Unmarshal([]byte(body), def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return def, nil
}

// --- Instances ---

const instanceColumns = `id, definition_id, entity_kind, entity_id, status, current_node, variables,
	started_by, started_at, completed_at, sla_due_at, version, updated_at`

func (o sqlOps) CreateInstance(ctx context.Context, inst *Instance) error {
	vars, err := marshalMapOrDefault(inst.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	if inst.Version == 0 {
		inst.Version = 1
	}
	inst.StartedAt = timeOrNow(inst.StartedAt)
	inst.UpdatedAt = timeOrNow(inst.UpdatedAt)

	_, err = o.q.ExecContext(ctx,
		`INSERT INTO instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.DefinitionID, inst.EntityKind, inst.EntityID, string(inst.Status),
		nullStr(inst.CurrentNode), string(vars), inst.StartedBy, inst.StartedAt,
		nullTime(inst.CompletedAt), nullTime(inst.SLADueAt), inst.Version, inst.UpdatedAt,
	)
	return err
}

func (o sqlOps) UpdateInstance(ctx context.Context, inst *Instance, expectedVersion int64) error {
	vars, err := marshalMapOrDefault(inst.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	updatedAt := timeOrNow(inst.UpdatedAt)

	res, err := o.q.ExecContext(ctx,
		`UPDATE instances
		 SET status = ?, current_node = ?, variables = ?, completed_at = ?, sla_due_at = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(inst.Status), nullStr(inst.CurrentNode), string(vars),
		nullTime(inst.CompletedAt), nullTime(inst.SLADueAt), updatedAt,
		inst.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := o.q.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?`, inst.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return storeNotFound("instance", inst.ID)
		}
		if err != nil {
			return err
		}
		return schema.NewErrorf(schema.ErrCodeConcurrentModification,
			"instance was modified concurrently (expected version %d)", expectedVersion).
			WithInstance(inst.ID)
	}
	inst.Version = expectedVersion + 1
	inst.UpdatedAt = updatedAt
	return nil
}

func (o sqlOps) GetInstance(ctx context.Context, id string) (*Instance, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("instance", id)
	}
	return inst, err
}

func (o sqlOps) ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var where []string
	var args []any

	if filter.DefinitionID != "" {
		where = append(where, "definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.EntityKind != "" {
		where = append(where, "entity_kind = ?")
		args = append(args, filter.EntityKind)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.CurrentNode != "" {
		where = append(where, "current_node = ?")
		args = append(args, filter.CurrentNode)
	}
	if filter.SLADueBefore != nil {
		where = append(where, "sla_due_at IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"
	// Timestamp cutoffs are applied after scanning, so paging moves with them.
	if filter.SLADueBefore == nil {
		query += limitClause(filter.Limit, filter.Offset)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		if filter.SLADueBefore != nil && !inst.SLADueAt.Before(*filter.SLADueBefore) {
			continue
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.SLADueBefore != nil {
		out = page(out, filter.Offset, filter.Limit)
	}
	return out, nil
}

func scanInstance(sc scanner) (*Instance, error) {
	inst := &Instance{}
	var (
		status                string
		currentNode           sql.NullString
		varsJSON              string
		completedAt, slaDueAt sql.NullTime
	)
	if err := sc.Scan(&inst.ID, &inst.DefinitionID, &inst.EntityKind, &inst.EntityID, &status,
		&currentNode, &varsJSON, &inst.StartedBy, &inst.StartedAt, &completedAt, &slaDueAt,
		&inst.Version, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.Status = schema.InstanceStatus(status)
	inst.CurrentNode = currentNode.String
	inst.Variables = make(map[string]any)
	if varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &inst.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables of instance %s: %w", inst.ID, err)
		}
	}
	inst.CompletedAt = timePtr(completedAt)
	inst.SLADueAt = timePtr(slaDueAt)
	return inst, nil
}

// --- Tasks ---

const taskColumns = `id, instance_id, node_id, name, status, assignee_user, assignee_group,
	due_at, created_at, completed_at, completed_by`

func (o sqlOps) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.CreatedAt = timeOrNow(task.CreatedAt)
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.InstanceID, task.NodeID, task.Name, string(task.Status),
		nullStr(task.AssigneeUser), nullStr(task.AssigneeGroup), nullTime(task.DueAt),
		task.CreatedAt, nullTime(task.CompletedAt), nullStr(task.CompletedBy),
	)
	return err
}

func (o sqlOps) UpdateTask(ctx context.Context, task *Task) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE tasks SET status = ?, assignee_user = ?, assignee_group = ?, completed_at = ?, completed_by = ?
		 WHERE id = ?`,
		string(task.Status), nullStr(task.AssigneeUser), nullStr(task.AssigneeGroup),
		nullTime(task.CompletedAt), nullStr(task.CompletedBy), task.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "task", task.ID)
}

func (o sqlOps) CancelOpenTasks(ctx context.Context, instanceID string, at time.Time) ([]string, error) {
	open, err := o.ListTasks(ctx, TaskFilter{InstanceID: instanceID, Statuses: schema.OpenTaskStatuses})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(open))
	for _, t := range open {
		t.Status = schema.TaskStatusCancelled
		t.CompletedAt = &at
		if err := o.UpdateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("cancel task %s: %w", t.ID, err)
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (o sqlOps) GetTask(ctx context.Context, id string) (*Task, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("task", id)
	}
	return t, err
}

func (o sqlOps) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var where []string
	var args []any

	if filter.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.AssigneeUser != "" {
		where = append(where, "assignee_user = ?")
		args = append(args, filter.AssigneeUser)
	}
	if filter.AssigneeGroup != "" {
		where = append(where, "assignee_group = ?")
		args = append(args, filter.AssigneeGroup)
	}
	if filter.DueBefore != nil {
		where = append(where, "due_at IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"
	if filter.DueBefore == nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if filter.DueBefore != nil && !t.DueAt.Before(*filter.DueBefore) {
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.DueBefore != nil {
		out = page(out, 0, filter.Limit)
	}
	return out, nil
}

func scanTask(sc scanner) (*Task, error) {
	t := &Task{}
	var (
		status                   string
		user, group, completedBy sql.NullString
		dueAt, completedAt       sql.NullTime
	)
	if err := sc.Scan(&t.ID, &t.InstanceID, &t.NodeID, &t.Name, &status, &user, &group,
		&dueAt, &t.CreatedAt, &completedAt, &completedBy); err != nil {
		return nil, err
	}
	t.Status = schema.TaskStatus(status)
	t.AssigneeUser = user.String
	t.AssigneeGroup = group.String
	t.DueAt = timePtr(dueAt)
	t.CompletedAt = timePtr(completedAt)
	t.CompletedBy = completedBy.String
	return t, nil
}

// --- History ---

func (o sqlOps) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	var seq int64
	if err := o.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM history WHERE instance_id = ?`, entry.InstanceID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next history sequence: %w", err)
	}
	entry.Sequence = seq
	entry.Timestamp = timeOrNow(entry.Timestamp)

	_, err := o.q.ExecContext(ctx,
		`INSERT INTO history (instance_id, sequence, action, from_node, to_node, actor_id, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.InstanceID, seq, entry.Action, nullStr(entry.FromNode), nullStr(entry.ToNode),
		nullStr(entry.ActorID), nullRaw(entry.Details), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (o sqlOps) ListHistory(ctx context.Context, instanceID string) ([]*HistoryEntry, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, instance_id, sequence, action, from_node, to_node, actor_id, details, timestamp
		 FROM history WHERE instance_id = ? ORDER BY sequence ASC`, instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var from, to, actor, details sql.NullString
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.Sequence, &e.Action, &from, &to, &actor, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.FromNode = from.String
		e.ToNode = to.String
		e.ActorID = actor.String
		e.Details = rawOrNil(details)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id).
		WithDetails(map[string]any{"resource": resource, "id": id})
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

// limitClause renders LIMIT/OFFSET. SQLite needs a LIMIT before OFFSET, and
// -1 means no limit.
func limitClause(limit, offset int) string {
	switch {
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(offset, 0))
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
