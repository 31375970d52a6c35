package apply

import (
	"context"
	"errors"
	"fmt"

	"codepilot/internal/generator"
	"codepilot/internal/models"
	"codepilot/internal/resolve"
	"codepilot/internal/workspace"
)

// Reason explains why a task cannot be applied.
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonNotOpen  Reason = "not_open"
	ReasonNoFiles  Reason = "no_files"
)

// InvalidStateError rejects an apply before any work starts.
type InvalidStateError struct {
	TaskID string
	Reason Reason
}

func (e *InvalidStateError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("task %s not found", e.TaskID)
	case ReasonNotOpen:
		return fmt.Sprintf("task %s is not open", e.TaskID)
	case ReasonNoFiles:
		return fmt.Sprintf("task %s has no affected files", e.TaskID)
	default:
		return fmt.Sprintf("task %s cannot be applied: %s", e.TaskID, e.Reason)
	}
}

// TimeoutError reports an attempt that ran out of time in Stage.
type TimeoutError struct {
	Stage State
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("apply timed out during %s: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ErrNoChanges is wrapped in a generator error when every generated file
// matches its current content.
var ErrNoChanges = errors.New("generator produced no changes")

// Classify maps an apply failure onto the kind recorded in run history.
func Classify(err error) models.ErrorKind {
	var (
		timeout   *TimeoutError
		ambiguity *resolve.AmbiguityError
		conflict  *workspace.BranchConflictError
		genErr    *generator.Error
		wsErr     *workspace.Error
	)
	switch {
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return models.KindTimeout
	case errors.As(err, &ambiguity):
		return models.KindAmbiguity
	case errors.As(err, &conflict):
		return models.KindBranchConflict
	case errors.As(err, &genErr):
		return models.KindGenerator
	case errors.As(err, &wsErr):
		return models.KindWorkspace
	default:
		return models.KindInternal
	}
}
