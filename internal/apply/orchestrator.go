// Package apply drives one task from an open record to a pushed branch.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"codepilot/internal/generator"
	"codepilot/internal/git"
	"codepilot/internal/keylock"
	"codepilot/internal/models"
	"codepilot/internal/resolve"
	"codepilot/internal/store"
	"codepilot/internal/workspace"
)

const (
	defaultAttemptTimeout  = 15 * time.Minute
	defaultGenerateTimeout = 3 * time.Minute
	recordTimeout          = 10 * time.Second
)

// Workspace is a prepared checkout on the task branch.
type Workspace interface {
	FS() fs.FS
	ReadFile(rel string) ([]byte, bool, error)
	WriteFile(rel string, content []byte) error
	Discard(ctx context.Context) error
	Commit(ctx context.Context, message string, author git.Author) (string, error)
	Push(ctx context.Context) error
	Release()
}

// Workspaces prepares a workspace for a repository and branch.
type Workspaces interface {
	Prepare(ctx context.Context, targetRepo, branch string) (Workspace, error)
}

// PrepareFunc adapts a function to Workspaces.
type PrepareFunc func(ctx context.Context, targetRepo, branch string) (Workspace, error)

func (f PrepareFunc) Prepare(ctx context.Context, targetRepo, branch string) (Workspace, error) {
	return f(ctx, targetRepo, branch)
}

// FromManager exposes a workspace manager as Workspaces.
func FromManager(m *workspace.Manager) Workspaces {
	return PrepareFunc(func(ctx context.Context, targetRepo, branch string) (Workspace, error) {
		ws, err := m.Prepare(ctx, targetRepo, branch)
		if err != nil {
			return nil, err
		}
		return ws, nil
	})
}

// Config holds orchestrator settings.
type Config struct {
	// TargetRepo is used for tasks that do not name one.
	TargetRepo      string
	Ignore          []string
	AttemptTimeout  time.Duration
	GenerateTimeout time.Duration
	Author          git.Author
}

// Orchestrator runs apply attempts. Attempts for the same task are serialized.
type Orchestrator struct {
	store      store.TaskStore
	workspaces Workspaces
	generator  generator.ContentGenerator
	cfg        Config
	locks      *keylock.Locker
	logger     *slog.Logger
}

// New creates an orchestrator.
func New(st store.TaskStore, ws Workspaces, gen generator.ContentGenerator, cfg Config) *Orchestrator {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerateTimeout
	}
	return &Orchestrator{
		store:      st,
		workspaces: ws,
		generator:  gen,
		cfg:        cfg,
		locks:      keylock.New(),
		logger:     slog.Default().With("component", "apply"),
	}
}

// Apply runs one attempt for taskID. The returned Result is never nil; on
// failure it describes how far the attempt got and err says why.
//
// Once the task lock is held the attempt no longer follows ctx cancellation:
// it always runs to a terminal state, bounded by the attempt timeout.
func (o *Orchestrator) Apply(ctx context.Context, taskID string) (*Result, error) {
	res := &Result{TaskID: taskID, State: StateReceived, Stage: StateReceived, Files: []FileResult{}}

	unlock, err := o.locks.Lock(ctx, taskID)
	if err != nil {
		return o.finish(res, StateRejected, err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.AttemptTimeout)
	defer cancel()

	task, err := o.validate(ctx, taskID)
	if err != nil {
		var invalid *InvalidStateError
		if errors.As(err, &invalid) {
			return o.finish(res, StateRejected, err)
		}
		return o.finish(res, StateFailed, err)
	}
	res.advance(StateValidated)
	res.Branch = workspace.BranchName(task.ID)

	targetRepo := task.TargetRepo
	if targetRepo == "" {
		targetRepo = o.cfg.TargetRepo
	}
	logger := o.logger.With("task_id", task.ID, "branch", res.Branch)
	logger.Info("apply started", "repo", targetRepo, "files", len(task.AffectedFiles))

	ws, err := o.workspaces.Prepare(ctx, targetRepo, res.Branch)
	if err != nil {
		// Pre-flight failures are not recorded as attempts.
		logger.Warn("workspace preparation failed", "error", err)
		return o.finish(res, StateFailed, o.timeoutAware(res, err))
	}
	defer ws.Release()
	res.advance(StateWorkspacePrepared)

	if err := o.run(ctx, task, ws, res); err != nil {
		err = o.timeoutAware(res, err)
		o.finish(res, StateFailed, err)
		logger.Warn("apply failed", "stage", res.Stage, "kind", res.ErrorKind, "error", err)
		if recErr := o.record(ctx, task.ID, res, false); recErr != nil {
			logger.Error("record failed attempt", "error", recErr)
			return res, errors.Join(err, recErr)
		}
		return res, err
	}

	if err := o.record(ctx, task.ID, res, true); err != nil {
		// The branch is already on the remote; only the bookkeeping failed.
		logger.Error("record successful apply", "commit", res.Commit, "error", err)
		return o.finish(res, StateFailed, fmt.Errorf("record successful apply: %w", err))
	}
	res.advance(StateTaskClosed)
	logger.Info("apply finished", "commit", res.Commit)
	return res, nil
}

func (o *Orchestrator) validate(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &InvalidStateError{TaskID: taskID, Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if !task.IsOpen() {
		return nil, &InvalidStateError{TaskID: taskID, Reason: ReasonNotOpen}
	}
	if len(task.AffectedFiles) == 0 {
		return nil, &InvalidStateError{TaskID: taskID, Reason: ReasonNoFiles}
	}
	return task, nil
}

// run executes the stages after workspace preparation.
func (o *Orchestrator) run(ctx context.Context, task *models.Task, ws Workspace, res *Result) error {
	if err := o.resolvePaths(ws, task, res); err != nil {
		return err
	}
	res.advance(StatePathsResolved)

	contents, err := o.generate(ctx, task, ws, res)
	if err != nil {
		return o.discard(ctx, ws, err)
	}
	res.advance(StateContentGenerated)

	if len(contents) == 0 {
		return o.discard(ctx, ws, &generator.Error{Op: "generate", Err: ErrNoChanges})
	}
	for _, p := range res.resolvedPaths() {
		content, ok := contents[p]
		if !ok {
			continue
		}
		if err := ws.WriteFile(p, []byte(content)); err != nil {
			return o.discard(ctx, ws, &workspace.Error{Op: "write", Err: err})
		}
	}

	sha, err := ws.Commit(ctx, commitMessage(task), o.cfg.Author)
	if errors.Is(err, workspace.ErrNothingToCommit) {
		return o.discard(ctx, ws, &generator.Error{Op: "generate", Err: ErrNoChanges})
	}
	if err != nil {
		return o.discard(ctx, ws, err)
	}
	res.Commit = sha
	res.advance(StateCommitted)

	// A failed push keeps the local commit; the next attempt rebuilds the branch.
	if err := ws.Push(ctx); err != nil {
		return err
	}
	res.advance(StatePushed)
	return nil
}

// resolvePaths fills res.Files. Resolution is all-or-nothing.
func (o *Orchestrator) resolvePaths(ws Workspace, task *models.Task, res *Result) error {
	resolved, err := resolve.All(ws.FS(), task.AffectedFiles, resolve.Options{Ignore: o.cfg.Ignore})
	failures, isAmbiguity := resolve.AsFailures(err)
	if err != nil && !isAmbiguity {
		return &workspace.Error{Op: "resolve", Err: err}
	}

	// Both lists keep the order of AffectedFiles.
	files := make([]FileResult, 0, len(task.AffectedFiles))
	for _, requested := range task.AffectedFiles {
		if len(resolved) > 0 && resolved[0].Requested == requested {
			r := resolved[0]
			resolved = resolved[1:]
			files = append(files, FileResult{Requested: requested, Resolved: r.Path, Method: r.Method})
			continue
		}
		if len(failures) > 0 && failures[0].Requested == requested {
			f := failures[0]
			failures = failures[1:]
			files = append(files, FileResult{Requested: requested, Candidates: f.Candidates, ErrorKind: f.Kind})
		}
	}
	res.Files = files
	return err
}

// generate buffers new content for every resolved path that changes.
func (o *Orchestrator) generate(ctx context.Context, task *models.Task, ws Workspace, res *Result) (map[string]string, error) {
	contents := map[string]string{}
	changed := map[string]bool{}
	for _, p := range res.resolvedPaths() {
		current, exists, err := ws.ReadFile(p)
		if err != nil {
			return nil, &workspace.Error{Op: "read", Err: err}
		}

		genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
		content, err := o.generator.Generate(genCtx, generator.GenerateRequest{
			Path:    p,
			Current: string(current),
			Exists:  exists,
			Task:    task,
		})
		cancel()
		if err != nil {
			var genErr *generator.Error
			if !errors.As(err, &genErr) && !errors.Is(err, context.DeadlineExceeded) {
				err = &generator.Error{Op: "generate", Err: err}
			}
			return nil, fmt.Errorf("generate %s: %w", p, err)
		}

		if content != string(current) || !exists {
			contents[p] = content
			changed[p] = true
		}
	}

	for i := range res.Files {
		res.Files[i].Changed = changed[res.Files[i].Resolved]
	}
	return contents, nil
}

func (o *Orchestrator) discard(ctx context.Context, ws Workspace, cause error) error {
	if err := ws.Discard(ctx); err != nil {
		o.logger.Error("discard workspace", "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

// record appends the attempt to run history. It runs detached from the
// attempt deadline so a timed-out attempt is still recorded.
func (o *Orchestrator) record(ctx context.Context, taskID string, res *Result, success bool) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	run := &models.RunRecord{
		Branch:        res.Branch,
		ResolvedFiles: res.resolvedPaths(),
		Commit:        res.Commit,
	}
	mutation := store.TaskMutation{Run: run}
	if success {
		run.Outcome = models.OutcomeSuccess
		mutation.Close = true
		mutation.AppliedBranch = res.Branch
	} else {
		run.Outcome = models.OutcomeFailure
		run.ErrorKind = res.ErrorKind
		run.Error = res.Error
	}
	_, err := o.store.UpdateTask(ctx, taskID, mutation)
	return err
}

// finish sets the terminal state and error fields on res.
func (o *Orchestrator) finish(res *Result, state State, err error) (*Result, error) {
	res.State = state
	if err != nil {
		res.ErrorKind = Classify(err)
		res.Error = err.Error()
	}
	return res, err
}

func (o *Orchestrator) timeoutAware(res *Result, err error) error {
	var timeout *TimeoutError
	if errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &timeout) {
		return &TimeoutError{Stage: res.Stage, Err: err}
	}
	return err
}

func commitMessage(task *models.Task) string {
	var b strings.Builder
	b.WriteString(task.Title)
	if desc := strings.TrimSpace(task.Description); desc != "" && desc != task.Title {
		b.WriteString("\n\n")
		b.WriteString(desc)
	}
	b.WriteString("\n\nTask: ")
	b.WriteString(task.ID)
	return b.String()
}
