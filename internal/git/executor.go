package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"codepilot/internal/executil"
)

// Executor implements Git using the git command-line tool.
type Executor struct {
	gitPath string
	exec    executil.Executor
}

// NewExecutor creates a new git executor with the specified git binary path.
func NewExecutor(gitPath string, exec executil.Executor) *Executor {
	if gitPath == "" {
		gitPath = "git"
	}
	return &Executor{gitPath: gitPath, exec: exec}
}

func (e *Executor) Clone(ctx context.Context, url, dest string) error {
	if _, err := e.exec.Run(ctx, e.gitPath, "clone", "--no-tags", url, dest); err != nil {
		return fmt.Errorf("clone %s to %s: %w", url, dest, err)
	}
	return nil
}

func (e *Executor) Fetch(ctx context.Context, dir string) error {
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, "fetch", "--prune", "origin"); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func (e *Executor) CheckoutNew(ctx context.Context, dir, branch, start string) error {
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, "checkout", "-B", branch, start); err != nil {
		return fmt.Errorf("checkout -B %s: %w", branch, err)
	}
	return nil
}

func (e *Executor) ResetHard(ctx context.Context, dir, ref string) error {
	args := []string{"reset", "--hard"}
	if ref != "" {
		args = append(args, ref)
	}
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, args...); err != nil {
		return fmt.Errorf("reset --hard: %w", err)
	}
	return nil
}

func (e *Executor) Clean(ctx context.Context, dir string) error {
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, "clean", "-fd"); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

func (e *Executor) RevParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *Executor) RemoteBranchExists(ctx context.Context, dir, branch string) (bool, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "for-each-ref", "--format=%(objectname)", "refs/remotes/origin/"+branch)
	if err != nil {
		return false, fmt.Errorf("for-each-ref: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func (e *Executor) IsAncestor(ctx context.Context, dir, ancestor, descendant string) (bool, error) {
	_, err := e.exec.RunDir(ctx, dir, e.gitPath, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	// Exit status 1 is the "not an ancestor" answer; anything else is a failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("merge-base --is-ancestor: %w", err)
}

func (e *Executor) DefaultBranch(ctx context.Context, dir string) (string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve origin/HEAD: %w", err)
	}
	branch := strings.TrimPrefix(strings.TrimSpace(string(out)), "origin/")
	if branch == "" {
		return "", fmt.Errorf("origin/HEAD is not set")
	}
	return branch, nil
}

func (e *Executor) LsRemote(ctx context.Context, url string) error {
	if _, err := e.exec.Run(ctx, e.gitPath, "ls-remote", "--heads", url); err != nil {
		return fmt.Errorf("ls-remote %s: %w", url, err)
	}
	return nil
}

func (e *Executor) RemoteURL(ctx context.Context, dir string) (string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("get remote url: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *Executor) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

func (e *Executor) Branch(ctx context.Context, dir string) (string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("git branch: %w", err)
	}

	branch := strings.TrimSpace(string(out))
	if branch != "" {
		return branch, nil
	}

	// Empty branch name means detached HEAD - get short commit SHA
	out, err = e.exec.RunDir(ctx, dir, e.gitPath, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

func (e *Executor) CommitAll(ctx context.Context, dir, message string, author Author) (string, error) {
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	args := []string{}
	if author.Name != "" {
		args = append(args, "-c", "user.name="+author.Name)
	}
	if author.Email != "" {
		args = append(args, "-c", "user.email="+author.Email)
	}
	args = append(args, "commit", "--no-verify", "-m", message)
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, args...); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return e.RevParse(ctx, dir, "HEAD")
}

func (e *Executor) Push(ctx context.Context, dir, branch string) error {
	if _, err := e.exec.RunDir(ctx, dir, e.gitPath, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

func (e *Executor) LsFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "ls-files", "-z")
	if err != nil {
		return nil, fmt.Errorf("ls-files: %w", err)
	}
	return splitNul(out), nil
}

func splitNul(out []byte) []string {
	files := []string{}
	for _, name := range strings.Split(string(out), "\x00") {
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}
