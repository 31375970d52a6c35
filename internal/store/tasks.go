package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codepilot/internal/models"
)

// sortableTimeLayout is fixed width so text ordering matches time ordering.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

// CreateTask allocates an id and inserts a new open task.
func (s *Store) CreateTask(ctx context.Context, spec models.TaskSpec, targetRepo string) (*models.Task, error) {
	id, err := GenerateID(s.TaskExists)
	if err != nil {
		return nil, err
	}
	task := newTask(id, spec, targetRepo, s.now())

	doc, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, status, created_at, updated_at, title, type, priority, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Status,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		task.Title,
		task.Type,
		task.Priority,
		string(doc),
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return getTask(ctx, s.db, id)
}

// ListTasks returns task summaries ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]models.TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, type, priority, status, created_at
		FROM tasks ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.TaskSummary{}
	for rows.Next() {
		var summary models.TaskSummary
		var createdAt string
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.Type, &summary.Priority, &summary.Status, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		summary.CreatedAt = parsed
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// UpdateTask applies a mutation inside one write transaction.
func (s *Store) UpdateTask(ctx context.Context, id string, mutation TaskMutation) (*models.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	task, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err = applyMutation(task, mutation, s.now()); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, updated_at = ?, doc = ? WHERE id = ?",
		task.Status, formatTime(task.UpdatedAt), string(doc), id,
	)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryRower, id string) (*models.Task, error) {
	var doc string
	err := q.QueryRowContext(ctx, "SELECT doc FROM tasks WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal([]byte(doc), &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
