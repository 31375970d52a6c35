package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"codepilot/internal/git"
	"codepilot/internal/resolve"
)

// Workspace is a clone checked out on a task branch. It holds the repository
// lock until Release.
type Workspace struct {
	Path       string
	Branch     string
	BaseCommit string

	root    *os.Root
	git     git.Git
	manager *Manager
	release func()
	once    sync.Once
}

// FS exposes the working tree for path resolution. Lookups cannot leave the
// clone and symbolic links are reported through Lstat.
func (w *Workspace) FS() fs.FS {
	return resolve.RootFS(w.root)
}

// ReadFile returns the content of a tracked path. exists is false when the
// file is absent.
func (w *Workspace) ReadFile(rel string) (content []byte, exists bool, err error) {
	name, err := w.native(rel)
	if err != nil {
		return nil, false, err
	}
	f, err := w.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteFile replaces rel with content, keeping the existing file mode. It
// refuses to write through a symbolic link.
func (w *Workspace) WriteFile(rel string, content []byte) error {
	name, err := w.native(rel)
	if err != nil {
		return err
	}
	if err := w.mkdirParents(rel); err != nil {
		return err
	}

	mode := fs.FileMode(0o644)
	info, err := w.root.Lstat(name)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		return fmt.Errorf("refusing to write %s: %w", rel, ErrSymlink)
	case err == nil:
		mode = info.Mode().Perm()
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	f, err := w.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Discard drops every change made since the branch was created.
func (w *Workspace) Discard(ctx context.Context) error {
	if err := w.manager.run(ctx, "discard", func(ctx context.Context) error {
		return w.git.ResetHard(ctx, w.Path, w.BaseCommit)
	}); err != nil {
		return err
	}
	return w.manager.run(ctx, "discard", func(ctx context.Context) error {
		return w.git.Clean(ctx, w.Path)
	})
}

// Commit stages all changes as one commit on the task branch and returns its
// SHA.
func (w *Workspace) Commit(ctx context.Context, message string, author git.Author) (string, error) {
	var current string
	var clean bool
	err := w.manager.run(ctx, "status", func(ctx context.Context) error {
		var err error
		if current, err = w.git.Branch(ctx, w.Path); err != nil {
			return err
		}
		clean, err = w.git.IsClean(ctx, w.Path)
		return err
	})
	if err != nil {
		return "", err
	}
	if current != w.Branch {
		return "", fmt.Errorf("%w: checked out %s, expected %s", ErrBranchMoved, current, w.Branch)
	}
	if clean {
		return "", ErrNothingToCommit
	}

	var sha string
	err = w.manager.run(ctx, "commit", func(ctx context.Context) error {
		var err error
		sha, err = w.git.CommitAll(ctx, w.Path, message, author)
		return err
	})
	return sha, err
}

// Push publishes the task branch to origin. The local commit is kept on failure.
func (w *Workspace) Push(ctx context.Context) error {
	return w.manager.run(ctx, "push", func(ctx context.Context) error {
		return w.git.Push(ctx, w.Path, w.Branch)
	})
}

// Release closes the tree and unlocks the repository. It is safe to call
// more than once.
func (w *Workspace) Release() {
	w.once.Do(func() {
		if w.root != nil {
			w.root.Close()
		}
		if w.release != nil {
			w.release()
		}
	})
}

func (w *Workspace) native(rel string) (string, error) {
	if !fs.ValidPath(rel) || rel == "." {
		return "", fmt.Errorf("invalid workspace path %q", rel)
	}
	return filepath.FromSlash(rel), nil
}

// mkdirParents creates the missing parent directories of rel one segment at a
// time. An existing parent must be a real directory.
func (w *Workspace) mkdirParents(rel string) error {
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}
	var prefix string
	for _, seg := range strings.Split(dir, "/") {
		prefix = path.Join(prefix, seg)
		name := filepath.FromSlash(prefix)
		info, err := w.root.Lstat(name)
		switch {
		case err == nil && info.Mode()&fs.ModeSymlink != 0:
			return fmt.Errorf("refusing to write under %s: %w", prefix, ErrSymlink)
		case err == nil && !info.IsDir():
			return fmt.Errorf("%s is not a directory", prefix)
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			if err := w.root.Mkdir(name, 0o755); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}
