package models

import (
	"fmt"
	"strings"
)

// TaskStatus defines allowed lifecycle states for tasks.
type TaskStatus string

const (
	StatusOpen   TaskStatus = "open"
	StatusClosed TaskStatus = "closed"
)

// TaskType defines allowed change categories.
type TaskType string

const (
	TypeBugfix   TaskType = "bugfix"
	TypeFeature  TaskType = "feature"
	TypeRefactor TaskType = "refactor"
)

// Priority defines task urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RunOutcome is the result of one apply attempt.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomeFailure RunOutcome = "failure"
)

// ErrorKind classifies a failed apply attempt in run history.
type ErrorKind string

const (
	KindAmbiguity      ErrorKind = "ambiguity"
	KindGenerator      ErrorKind = "generator"
	KindWorkspace      ErrorKind = "workspace"
	KindBranchConflict ErrorKind = "branch_conflict"
	KindTimeout        ErrorKind = "timeout"
	KindInternal       ErrorKind = "internal"
)

const (
	DefaultTitle    = "Untitled Task"
	DefaultType     = TypeFeature
	DefaultPriority = PriorityMedium
)

var validTaskStatuses = map[TaskStatus]struct{}{
	StatusOpen:   {},
	StatusClosed: {},
}

var validTaskTypes = map[TaskType]struct{}{
	TypeBugfix:   {},
	TypeFeature:  {},
	TypeRefactor: {},
}

var validPriorities = map[Priority]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
}

// taskTypeAliases maps common spellings produced by the spec generator.
var taskTypeAliases = map[string]TaskType{
	"bug":         TypeBugfix,
	"fix":         TypeBugfix,
	"bug_fix":     TypeBugfix,
	"bug-fix":     TypeBugfix,
	"code_change": TypeFeature,
	"enhancement": TypeFeature,
	"refactoring": TypeRefactor,
}

func IsValidTaskStatus(status TaskStatus) bool {
	_, ok := validTaskStatuses[status]
	return ok
}

func IsValidTaskType(taskType TaskType) bool {
	_, ok := validTaskTypes[taskType]
	return ok
}

func IsValidPriority(priority Priority) bool {
	_, ok := validPriorities[priority]
	return ok
}

func ParseTaskStatus(raw string) (TaskStatus, error) {
	value := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("status is required")
	}
	if !IsValidTaskStatus(value) {
		return "", fmt.Errorf("invalid status: %s", value)
	}
	return value, nil
}

func ParseTaskType(raw string) (TaskType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("type is required")
	}
	if alias, ok := taskTypeAliases[normalized]; ok {
		return alias, nil
	}
	value := TaskType(normalized)
	if !IsValidTaskType(value) {
		return "", fmt.Errorf("invalid type: %s", value)
	}
	return value, nil
}

func ParsePriority(raw string) (Priority, error) {
	value := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("priority is required")
	}
	if !IsValidPriority(value) {
		return "", fmt.Errorf("invalid priority: %s", value)
	}
	return value, nil
}
