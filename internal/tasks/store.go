package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no task row has the requested id.
var ErrNotFound = errors.New("task not found")

// Store is the persistence the handlers need. Implementations must release
// any connection they take before returning, on every path.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, id int64, t Task) (Task, error)
	Delete(ctx context.Context, id int64) (Task, error)
	Ping(ctx context.Context) error
}

// SQLStore keeps tasks in the tasks table of a database/sql database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) List(ctx context.Context, f ListFilter) ([]Task, error) {
	query, params := BuildListQuery(s.dialect, f)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return result, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectTasks+" WHERE id = ?"), id)

	t, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) Create(ctx context.Context, t Task) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created, err := scanTask(tx.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO tasks (title, description, completed)
		VALUES (?, ?, ?)
		RETURNING id, title, description, completed
	`), t.Title, t.Description, t.Completed))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// Update replaces all mutable fields of task id. The existence check runs
// first, in the same transaction, so a miss never reaches the UPDATE.
func (s *SQLStore) Update(ctx context.Context, id int64, t Task) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind("SELECT id FROM tasks WHERE id = ?"), id).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("update task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("update task %d: %w", id, err)
	}

	updated, err := scanTask(tx.QueryRowContext(ctx, s.dialect.Rebind(`
		UPDATE tasks
		SET title = ?, description = ?, completed = ?
		WHERE id = ?
		RETURNING id, title, description, completed
	`), t.Title, t.Description, t.Completed, id))
	if err != nil {
		return Task{}, fmt.Errorf("update task %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// Delete removes task id and returns the removed row.
func (s *SQLStore) Delete(ctx context.Context, id int64) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	deleted, err := scanTask(tx.QueryRowContext(ctx, s.dialect.Rebind(`
		DELETE FROM tasks
		WHERE id = ?
		RETURNING id, title, description, completed
	`), id))
	if err != nil {
		return Task{}, fmt.Errorf("delete task %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

func scanTask(row *sql.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}
