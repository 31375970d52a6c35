package models

import (
	"fmt"
	"time"
)

// Task is one change request and its apply history.
type Task struct {
	ID                 string      `json:"task_id"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Type               TaskType    `json:"type"`
	Priority           Priority    `json:"priority"`
	AcceptanceCriteria []string    `json:"acceptance_criteria"`
	AffectedFiles      []string    `json:"affected_files"`
	TargetRepo         string      `json:"target_repo"`
	Status             TaskStatus  `json:"status"`
	AppliedBranch      string      `json:"applied_branch,omitempty"`
	RunHistory         []RunRecord `json:"run_history"`
}

// RunRecord is one apply attempt that got past workspace preparation.
type RunRecord struct {
	At            time.Time  `json:"at"`
	Branch        string     `json:"branch"`
	ResolvedFiles []string   `json:"resolved_files"`
	Outcome       RunOutcome `json:"outcome"`
	ErrorKind     ErrorKind  `json:"error_kind,omitempty"`
	Error         string     `json:"error,omitempty"`
	Commit        string     `json:"commit,omitempty"`
}

// TaskSummary is the list view of a task.
type TaskSummary struct {
	ID        string     `json:"task_id"`
	Title     string     `json:"title"`
	Type      TaskType   `json:"type"`
	Priority  Priority   `json:"priority"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsOpen reports whether the task can still be applied.
func (t *Task) IsOpen() bool {
	return t != nil && t.Status == StatusOpen
}

// Summary returns the list view of the task.
func (t *Task) Summary() TaskSummary {
	return TaskSummary{
		ID:        t.ID,
		Title:     t.Title,
		Type:      t.Type,
		Priority:  t.Priority,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
	}
}

// HasSuccessfulRun reports whether run history holds a success entry.
func (t *Task) HasSuccessfulRun() bool {
	for _, run := range t.RunHistory {
		if run.Outcome == OutcomeSuccess {
			return true
		}
	}
	return false
}

// CheckInvariant verifies that a task is closed iff it has a successful run and
// an applied branch.
func (t *Task) CheckInvariant() error {
	if !IsValidTaskStatus(t.Status) {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	applied := t.HasSuccessfulRun() && t.AppliedBranch != ""
	switch {
	case t.Status == StatusClosed && !applied:
		return fmt.Errorf("task %s is closed without a successful run on a branch", t.ID)
	case t.Status == StatusOpen && applied:
		return fmt.Errorf("task %s has a successful run but is still open", t.ID)
	}
	return nil
}
