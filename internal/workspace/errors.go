package workspace

import (
	"errors"
	"fmt"
)

// ErrNothingToCommit is returned by Commit when the tree has no changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// ErrSymlink is returned when a write would follow a symbolic link.
var ErrSymlink = errors.New("path is a symbolic link")

// ErrBranchMoved is returned by Commit when the clone is no longer on the task
// branch.
var ErrBranchMoved = errors.New("clone left the task branch")

// ErrNoTargetRepo is returned when a task has no repository to work on.
var ErrNoTargetRepo = errors.New("no target repository configured")

// Error reports a failed git operation on the local clone. Clone, fetch and
// push failures are retryable.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BranchConflictError reports that the task branch already exists on the
// remote with commits that are not on the default branch.
type BranchConflictError struct {
	Branch string
	Remote string
}

func (e *BranchConflictError) Error() string {
	return fmt.Sprintf("branch %s already exists on origin at %s and has diverged from the default branch", e.Branch, shortSHA(e.Remote))
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
