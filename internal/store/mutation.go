package store

import (
	"fmt"
	"strings"
	"time"

	"codepilot/internal/models"
)

// TaskMutation describes one atomic change to a task's status and run history.
type TaskMutation struct {
	// Run is appended to run history when set.
	Run *models.RunRecord
	// Close transitions the task to closed. It requires a successful Run and a
	// non-empty AppliedBranch.
	Close         bool
	AppliedBranch string
}

// IsApply reports whether the mutation records an apply attempt.
func (m TaskMutation) IsApply() bool {
	return m.Run != nil || m.Close
}

func newTask(id string, spec models.TaskSpec, targetRepo string, now time.Time) *models.Task {
	return &models.Task{
		ID:                 id,
		CreatedAt:          now,
		UpdatedAt:          now,
		Title:              spec.Title,
		Description:        spec.Description,
		Type:               models.TaskType(spec.Type),
		Priority:           models.Priority(spec.Priority),
		AcceptanceCriteria: nonNil(spec.AcceptanceCriteria),
		AffectedFiles:      nonNil(spec.AffectedFiles),
		TargetRepo:         strings.TrimSpace(targetRepo),
		Status:             models.StatusOpen,
		RunHistory:         []models.RunRecord{},
	}
}

func applyMutation(task *models.Task, m TaskMutation, now time.Time) error {
	if m.IsApply() && task.Status == models.StatusClosed {
		return fmt.Errorf("%w: %s", ErrConflict, task.ID)
	}

	branch := strings.TrimSpace(m.AppliedBranch)
	if m.Close {
		if m.Run == nil || m.Run.Outcome != models.OutcomeSuccess || branch == "" {
			return fmt.Errorf("%w: close requires a successful run and a branch", ErrInvalidMutation)
		}
	} else if m.Run != nil && m.Run.Outcome == models.OutcomeSuccess {
		return fmt.Errorf("%w: successful run must close the task", ErrInvalidMutation)
	}

	if m.Run != nil {
		run := *m.Run
		if run.At.IsZero() {
			run.At = now
		}
		run.ResolvedFiles = nonNil(run.ResolvedFiles)
		task.RunHistory = append(task.RunHistory, run)
	}
	if m.Close {
		task.Status = models.StatusClosed
		task.AppliedBranch = branch
	}
	task.UpdatedAt = now

	if err := task.CheckInvariant(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func utcNow() time.Time {
	return time.Now().UTC()
}
