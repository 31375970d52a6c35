package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"codepilot/internal/models"
)

const lockFileName = ".lock"

// DirStore keeps one <task_id>.json document per task in a directory.
type DirStore struct {
	dir    string
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// OpenDir opens (and creates if needed) a directory-backed task store.
func OpenDir(dir string) (*DirStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("task directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task directory: %w", err)
	}
	return &DirStore{
		dir:    dir,
		now:    utcNow,
		logger: slog.Default().With("component", "dirstore"),
	}, nil
}

// CreateTask allocates an id and writes a new open task document.
func (s *DirStore) CreateTask(ctx context.Context, spec models.TaskSpec, targetRepo string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := GenerateID(s.exists)
	if err != nil {
		return nil, err
	}
	task := newTask(id, spec, targetRepo, s.now())
	if err := s.write(task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns a task by id.
func (s *DirStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.read(id)
}

// ListTasks returns task summaries ordered by creation time. Unreadable
// documents are skipped.
func (s *DirStore) ListTasks(ctx context.Context) ([]models.TaskSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	summaries := []models.TaskSummary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		task, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable task document", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, task.Summary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// UpdateTask applies a mutation under the store lock and an advisory file lock
// shared with other processes.
func (s *DirStore) UpdateTask(ctx context.Context, id string, mutation TaskMutation) (*models.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(filepath.Join(s.dir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("lock task directory: %w", err)
	}
	defer unlock()

	task, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if err := applyMutation(task, mutation, s.now()); err != nil {
		return nil, err
	}
	if err := s.write(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Ping checks that the task directory is reachable.
func (s *DirStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Writable reports whether new task documents can be written.
func (s *DirStore) Writable() error {
	return checkWritable(s.dir)
}

// Location returns the task directory.
func (s *DirStore) Location() string {
	return s.dir
}

// Close is a no-op for the directory store.
func (s *DirStore) Close() error {
	return nil
}

func (s *DirStore) exists(id string) (bool, error) {
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *DirStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *DirStore) read(id string) (*models.Task, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// write replaces the task document atomically via a temp file and rename.
func (s *DirStore) write(task *models.Task) error {
	data, err := json.MarshalIndent(task, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+task.ID+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(task.ID))
}
