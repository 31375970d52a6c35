// Package generator is the boundary to the services that turn requests into
// task specs and task specs into file content.
package generator

import (
	"context"
	"errors"
	"fmt"

	"codepilot/internal/models"
)

// GenerateRequest asks for the new content of one file.
type GenerateRequest struct {
	Path    string
	Current string
	// Exists is false for a file that is not in the tree yet.
	Exists bool
	Task   *models.Task
}

// ContentGenerator produces the full new content of a file.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// SpecRequest asks for a task spec from a natural-language message.
type SpecRequest struct {
	Message   string
	RepoFiles []string
}

// SpecGenerator turns a message into a structured task spec.
type SpecGenerator interface {
	GenerateSpec(ctx context.Context, req SpecRequest) (models.TaskSpec, error)
}

// Pinger reports whether the backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Error is a failed generator call. Transient failures (network, rate limit,
// server errors) are Retryable; malformed responses are not.
type Error struct {
	Op        string
	Retryable bool
	Status    int
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generator %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("generator %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse is returned when the service answers with no content.
var ErrEmptyResponse = errors.New("empty response")

// IsRetryable reports whether err is a generator error worth retrying.
func IsRetryable(err error) bool {
	var genErr *Error
	return errors.As(err, &genErr) && genErr.Retryable
}
