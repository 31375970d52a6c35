// Package git provides an abstraction for the git operations a workspace needs.
package git

import "context"

// Author identifies the committer of generated changes.
type Author struct {
	Name  string
	Email string
}

// Git defines git operations used by the workspace manager.
type Git interface {
	// Clone clones a repository from url to dest.
	Clone(ctx context.Context, url, dest string) error
	// Fetch updates remote-tracking refs from origin, pruning deleted ones.
	Fetch(ctx context.Context, dir string) error
	// CheckoutNew creates or resets branch at start and switches to it.
	CheckoutNew(ctx context.Context, dir, branch, start string) error
	// ResetHard discards all tracked changes in dir, resetting to ref when given.
	ResetHard(ctx context.Context, dir, ref string) error
	// Clean removes untracked files and directories in dir.
	Clean(ctx context.Context, dir string) error
	// RevParse resolves ref to a full commit SHA.
	RevParse(ctx context.Context, dir, ref string) (string, error)
	// RemoteBranchExists reports whether origin/<branch> is known locally.
	RemoteBranchExists(ctx context.Context, dir, branch string) (bool, error)
	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, dir, ancestor, descendant string) (bool, error)
	// DefaultBranch returns the branch origin/HEAD points at.
	DefaultBranch(ctx context.Context, dir string) (string, error)
	// LsRemote checks that url answers as a git remote.
	LsRemote(ctx context.Context, url string) error
	// RemoteURL returns the origin remote URL for dir.
	RemoteURL(ctx context.Context, dir string) (string, error)
	// IsClean returns true if there are no uncommitted changes in dir.
	IsClean(ctx context.Context, dir string) (bool, error)
	// Branch returns the current branch name, or short commit SHA if in detached HEAD state.
	Branch(ctx context.Context, dir string) (string, error)
	// CommitAll stages every change and commits it, returning the new SHA.
	CommitAll(ctx context.Context, dir, message string, author Author) (string, error)
	// Push pushes branch to origin and sets its upstream.
	Push(ctx context.Context, dir, branch string) error
	// LsFiles lists tracked files relative to dir.
	LsFiles(ctx context.Context, dir string) ([]string, error)
}

var _ Git = (*Executor)(nil)
