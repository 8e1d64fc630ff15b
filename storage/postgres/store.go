// Package postgres implements the task store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id     TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	task_name   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id);
`

const columns = `task_id, user_id, task_name, description, status, created_at`

const (
	insertTask = `INSERT INTO tasks (` + columns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	putTask = insertTask + `
ON CONFLICT (task_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	task_name = EXCLUDED.task_name,
	description = EXCLUDED.description,
	status = EXCLUDED.status,
	created_at = EXCLUDED.created_at`

	getTask = `SELECT ` + columns + ` FROM tasks WHERE task_id = $1`

	updateTask = `
UPDATE tasks SET
	task_name = COALESCE($3, task_name),
	description = COALESCE($4, description),
	status = COALESCE($5, status)
WHERE task_id = $1 AND user_id = $2
RETURNING ` + columns

	deleteTask = `DELETE FROM tasks WHERE task_id = $1 AND user_id = $2`

	existsTask = `SELECT EXISTS (SELECT 1 FROM tasks WHERE task_id = $1)`

	scanByOwner = `SELECT ` + columns + ` FROM tasks WHERE user_id = $1`
)

// Store persists tasks in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Store)(nil)

// Open creates a connection pool, verifies it and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return NewStore(pool), nil
}

// NewStore wraps an existing pool. The schema must already exist.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Put inserts or replaces a task.
func (s *Store) Put(ctx context.Context, t *domain.Task) error {
	if _, err := s.pool.Exec(ctx, putTask, t.ID, t.UserID, t.Name, t.Description, t.Status, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to put task: %w", err)
	}
	return nil
}

// Insert stores a new task unless the id is taken.
func (s *Store) Insert(ctx context.Context, t *domain.Task) error {
	_, err := s.pool.Exec(ctx, insertTask, t.ID, t.UserID, t.Name, t.Description, t.Status, t.CreatedAt)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return fmt.Errorf("task %s already exists: %w", t.ID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, getTask, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// Update applies patch in a single conditional statement.
func (s *Store) Update(ctx context.Context, id, owner string, patch domain.Patch) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, updateTask, id, owner, patch.Name, patch.Description, patch.Status)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.missingOrConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// Delete removes a task, conditional on id and owner.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	tag, err := s.pool.Exec(ctx, deleteTask, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// ScanByOwner uses idx_tasks_user_id to fetch one owner's tasks.
func (s *Store) ScanByOwner(ctx context.Context, owner string) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, scanByOwner, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	return tasks, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, existsTask, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("task %s owner precondition failed: %w", id, domain.ErrConflict)
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.Status, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// isPgDuplicateKeyError checks if error is a PostgreSQL unique violation.
func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
