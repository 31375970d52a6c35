// Package workspace keeps a local clone per target repository and prepares a
// fresh task branch in it for each apply attempt.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"codepilot/internal/git"
	"codepilot/internal/keylock"
)

// BranchPrefix tags every branch created for a task.
const BranchPrefix = "cpai-"

const defaultGitTimeout = 2 * time.Minute

var nonHex = regexp.MustCompile(`[^0-9a-f]`)

// BranchName derives the task branch: the prefix plus the first six hex
// characters of the id with separators stripped.
func BranchName(taskID string) string {
	hexID := nonHex.ReplaceAllString(strings.ToLower(taskID), "")
	if len(hexID) > 6 {
		hexID = hexID[:6]
	}
	return BranchPrefix + hexID
}

// Config holds workspace manager settings.
type Config struct {
	// Root is the directory that holds one clone per repository.
	Root string
	// DefaultBranch overrides origin/HEAD detection when set.
	DefaultBranch string
	// GitTimeout bounds each git invocation.
	GitTimeout time.Duration
}

// Manager serializes access to cached clones and prepares task branches.
type Manager struct {
	git           git.Git
	locks         *keylock.Locker
	root          string
	defaultBranch string
	gitTimeout    time.Duration
	logger        *slog.Logger
}

// NewManager creates a manager over the given git implementation.
func NewManager(g git.Git, cfg Config) *Manager {
	timeout := cfg.GitTimeout
	if timeout <= 0 {
		timeout = defaultGitTimeout
	}
	return &Manager{
		git:           g,
		locks:         keylock.New(),
		root:          cfg.Root,
		defaultBranch: strings.TrimSpace(cfg.DefaultBranch),
		gitTimeout:    timeout,
		logger:        slog.Default().With("component", "workspace"),
	}
}

// ClonePath returns where the clone of targetRepo lives.
func (m *Manager) ClonePath(targetRepo string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(targetRepo)))
	name := git.ExtractRepoName(targetRepo)
	if name == "" {
		name = "repo"
	}
	return filepath.Join(m.root, name+"-"+hex.EncodeToString(sum[:])[:10])
}

// Prepare brings the clone of targetRepo up to date and checks out branch off
// the default branch head. The repository stays locked until Release.
func (m *Manager) Prepare(ctx context.Context, targetRepo, branch string) (*Workspace, error) {
	dir, defaultBranch, release, err := m.sync(ctx, targetRepo)
	if err != nil {
		return nil, err
	}

	ws, err := m.checkoutBranch(ctx, dir, defaultBranch, branch)
	if err != nil {
		release()
		return nil, err
	}
	ws.release = release
	m.logger.Debug("workspace prepared", "path", dir, "branch", branch, "base", ws.BaseCommit)
	return ws, nil
}

// Sync brings the clone of targetRepo up to date on its default branch without
// creating a task branch. The caller must invoke release when done.
func (m *Manager) Sync(ctx context.Context, targetRepo string) (string, func(), error) {
	dir, _, release, err := m.sync(ctx, targetRepo)
	if err != nil {
		return "", nil, err
	}
	return dir, release, nil
}

// Probe checks that targetRepo answers as a git remote.
func (m *Manager) Probe(ctx context.Context, targetRepo string) error {
	if strings.TrimSpace(targetRepo) == "" {
		return ErrNoTargetRepo
	}
	return m.run(ctx, "probe", func(ctx context.Context) error {
		return m.git.LsRemote(ctx, targetRepo)
	})
}

func (m *Manager) sync(ctx context.Context, targetRepo string) (string, string, func(), error) {
	targetRepo = strings.TrimSpace(targetRepo)
	if targetRepo == "" {
		return "", "", nil, &Error{Op: "prepare", Err: ErrNoTargetRepo}
	}
	if m.root == "" {
		return "", "", nil, &Error{Op: "prepare", Err: fmt.Errorf("workspace root is not configured")}
	}

	dir := m.ClonePath(targetRepo)
	release, err := m.locks.Lock(ctx, dir)
	if err != nil {
		return "", "", nil, &Error{Op: "lock", Retryable: true, Err: err}
	}

	defaultBranch, err := m.refresh(ctx, targetRepo, dir)
	if err != nil {
		release()
		return "", "", nil, err
	}
	return dir, defaultBranch, release, nil
}

// refresh clones or fetches dir and leaves it on a clean default branch that
// matches origin.
func (m *Manager) refresh(ctx context.Context, targetRepo, dir string) (string, error) {
	fresh, err := m.ensureClone(ctx, targetRepo, dir)
	if err != nil {
		return "", err
	}

	if !fresh {
		if err := m.run(ctx, "fetch", func(ctx context.Context) error { return m.git.Fetch(ctx, dir) }); err != nil {
			return "", err
		}
		if err := m.run(ctx, "reset", func(ctx context.Context) error { return m.git.ResetHard(ctx, dir, "") }); err != nil {
			return "", err
		}
	}
	if err := m.run(ctx, "clean", func(ctx context.Context) error { return m.git.Clean(ctx, dir) }); err != nil {
		return "", err
	}

	defaultBranch := m.defaultBranch
	if defaultBranch == "" {
		err := m.run(ctx, "default-branch", func(ctx context.Context) error {
			var err error
			defaultBranch, err = m.git.DefaultBranch(ctx, dir)
			return err
		})
		if err != nil {
			return "", err
		}
	}

	// The local default branch never carries commits of its own, so resetting
	// it to origin is a fast-forward.
	err = m.run(ctx, "checkout", func(ctx context.Context) error {
		return m.git.CheckoutNew(ctx, dir, defaultBranch, "origin/"+defaultBranch)
	})
	if err != nil {
		return "", err
	}
	return defaultBranch, nil
}

// ensureClone clones targetRepo into dir when there is no usable clone. It
// reports whether a fresh clone was made.
func (m *Manager) ensureClone(ctx context.Context, targetRepo, dir string) (bool, error) {
	_, statErr := os.Stat(filepath.Join(dir, ".git"))
	switch {
	case statErr == nil:
		var remote string
		err := m.run(ctx, "remote", func(ctx context.Context) error {
			var err error
			remote, err = m.git.RemoteURL(ctx, dir)
			return err
		})
		if err == nil && remote == targetRepo {
			return false, nil
		}
		m.logger.Warn("discarding unusable clone", "path", dir, "remote", remote, "error", err)
	case !errors.Is(statErr, fs.ErrNotExist):
		return false, &Error{Op: "clone", Err: statErr}
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, &Error{Op: "clone", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return false, &Error{Op: "clone", Err: err}
	}
	m.logger.Info("cloning repository", "repo", targetRepo, "path", dir)
	err := m.run(ctx, "clone", func(ctx context.Context) error {
		return m.git.Clone(ctx, targetRepo, dir)
	})
	return true, err
}

func (m *Manager) checkoutBranch(ctx context.Context, dir, defaultBranch, branch string) (*Workspace, error) {
	var base string
	err := m.run(ctx, "rev-parse", func(ctx context.Context) error {
		var err error
		base, err = m.git.RevParse(ctx, dir, "origin/"+defaultBranch)
		return err
	})
	if err != nil {
		return nil, err
	}

	var exists bool
	err = m.run(ctx, "branch-check", func(ctx context.Context) error {
		var err error
		exists, err = m.git.RemoteBranchExists(ctx, dir, branch)
		return err
	})
	if err != nil {
		return nil, err
	}
	if exists {
		if err := m.checkRemoteBranch(ctx, dir, branch, base); err != nil {
			return nil, err
		}
	}

	err = m.run(ctx, "branch", func(ctx context.Context) error {
		return m.git.CheckoutNew(ctx, dir, branch, base)
	})
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return &Workspace{
		root:       root,
		Path:       dir,
		Branch:     branch,
		BaseCommit: base,
		git:        m.git,
		manager:    m,
	}, nil
}

// checkRemoteBranch accepts an existing origin/<branch> only when it carries
// nothing beyond the default head.
func (m *Manager) checkRemoteBranch(ctx context.Context, dir, branch, base string) error {
	var remote string
	var merged bool
	err := m.run(ctx, "branch-check", func(ctx context.Context) error {
		var err error
		remote, err = m.git.RevParse(ctx, dir, "origin/"+branch)
		if err != nil {
			return err
		}
		merged, err = m.git.IsAncestor(ctx, dir, remote, base)
		return err
	})
	if err != nil {
		return err
	}
	if !merged {
		return &BranchConflictError{Branch: branch, Remote: remote}
	}
	return nil
}

// run executes fn under the per-call git timeout and wraps failures.
func (m *Manager) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return &Error{Op: op, Retryable: true, Err: err}
	}
	return nil
}

// RepoFiles lists the tracked files of targetRepo's default branch.
func (m *Manager) RepoFiles(ctx context.Context, targetRepo string) ([]string, error) {
	dir, release, err := m.Sync(ctx, targetRepo)
	if err != nil {
		return nil, err
	}
	defer release()

	var files []string
	err = m.run(ctx, "ls-files", func(ctx context.Context) error {
		var err error
		files, err = m.git.LsFiles(ctx, dir)
		return err
	})
	return files, err
}
