package apply

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"codepilot/internal/generator"
	"codepilot/internal/git"
	"codepilot/internal/models"
	"codepilot/internal/store"
	"codepilot/internal/workspace"
)

// fakeWorkspace is an in-memory checkout.
type fakeWorkspace struct {
	mu        sync.Mutex
	base      map[string]string
	files     fstest.MapFS
	written   []string
	discarded int
	released  int
	commits   int
	pushed    bool
	commitErr error
	pushErr   error
}

func newFakeWorkspace(files map[string]string) *fakeWorkspace {
	ws := &fakeWorkspace{base: files}
	ws.reset()
	return ws
}

func (w *fakeWorkspace) reset() {
	w.files = fstest.MapFS{}
	for name, body := range w.base {
		w.files[name] = &fstest.MapFile{Data: []byte(body)}
	}
}

func (w *fakeWorkspace) FS() fs.FS {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := fstest.MapFS{}
	for k, v := range w.files {
		snapshot[k] = v
	}
	return snapshot
}

func (w *fakeWorkspace) ReadFile(rel string) ([]byte, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.files[rel]
	if !ok {
		return nil, false, nil
	}
	return f.Data, true, nil
}

func (w *fakeWorkspace) WriteFile(rel string, content []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[rel] = &fstest.MapFile{Data: content}
	w.written = append(w.written, rel)
	return nil
}

func (w *fakeWorkspace) Discard(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discarded++
	w.reset()
	return nil
}

func (w *fakeWorkspace) Commit(ctx context.Context, message string, author git.Author) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.commitErr != nil {
		return "", w.commitErr
	}
	dirty := false
	for name, body := range w.base {
		if string(w.files[name].Data) != body {
			dirty = true
		}
	}
	if !dirty {
		return "", workspace.ErrNothingToCommit
	}
	w.commits++
	return fmt.Sprintf("sha%d", w.commits), nil
}

func (w *fakeWorkspace) Push(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pushErr != nil {
		return w.pushErr
	}
	w.pushed = true
	return nil
}

func (w *fakeWorkspace) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released++
}

// fakeWorkspaces hands out one workspace, or fails.
type fakeWorkspaces struct {
	mu       sync.Mutex
	ws       *fakeWorkspace
	err      error
	prepared []string
}

func (f *fakeWorkspaces) Prepare(ctx context.Context, targetRepo, branch string) (Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, targetRepo+"@"+branch)
	if f.err != nil {
		return nil, f.err
	}
	return f.ws, nil
}

func (f *fakeWorkspaces) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prepared)
}

// genFunc adapts a function to generator.ContentGenerator.
type genFunc func(ctx context.Context, req generator.GenerateRequest) (string, error)

func (f genFunc) Generate(ctx context.Context, req generator.GenerateRequest) (string, error) {
	return f(ctx, req)
}

func appendLine(ctx context.Context, req generator.GenerateRequest) (string, error) {
	return req.Current + "// changed\n", nil
}

func newTestStore(t *testing.T) store.TaskStore {
	t.Helper()
	st, err := store.OpenDir(filepath.Join(t.TempDir(), "tasks"))
	require.NoError(t, err)
	return st
}

func createTask(t *testing.T, st store.TaskStore, files ...string) *models.Task {
	t.Helper()
	task, err := st.CreateTask(context.Background(), models.TaskSpec{
		Title:         "Rename helper",
		Description:   "Rename the helper method",
		Type:          "refactor",
		Priority:      "medium",
		AffectedFiles: files,
	}, "git@example.com:acme/app.git")
	require.NoError(t, err)
	return task
}
