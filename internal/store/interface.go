package store

import (
	"context"

	"codepilot/internal/models"
)

// TaskStore abstracts task storage backends. It is the only owner of task
// records.
type TaskStore interface {
	CreateTask(ctx context.Context, spec models.TaskSpec, targetRepo string) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]models.TaskSummary, error)
	UpdateTask(ctx context.Context, id string, mutation TaskMutation) (*models.Task, error)
	Ping(ctx context.Context) error
	Writable() error
	Location() string
	Close() error
}

var (
	_ TaskStore = (*Store)(nil)
	_ TaskStore = (*DirStore)(nil)
)
