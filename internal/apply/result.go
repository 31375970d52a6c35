package apply

import (
	"codepilot/internal/models"
	"codepilot/internal/resolve"
)

// State is a step of the apply state machine.
type State string

const (
	StateReceived          State = "received"
	StateValidated         State = "validated"
	StateWorkspacePrepared State = "workspace_prepared"
	StatePathsResolved     State = "paths_resolved"
	StateContentGenerated  State = "content_generated"
	StateCommitted         State = "committed"
	StatePushed            State = "pushed"
	StateTaskClosed        State = "task_closed"
	StateRejected          State = "rejected"
	StateFailed            State = "failed"
)

// Result describes one apply attempt. Stage is the last step that completed.
type Result struct {
	TaskID    string           `json:"task_id"`
	State     State            `json:"state"`
	Stage     State            `json:"stage"`
	Branch    string           `json:"branch,omitempty"`
	Commit    string           `json:"commit,omitempty"`
	Files     []FileResult     `json:"files"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// FileResult is the outcome for one affected file hint.
type FileResult struct {
	Requested  string         `json:"requested"`
	Resolved   string         `json:"resolved,omitempty"`
	Method     resolve.Method `json:"method,omitempty"`
	Candidates []string       `json:"candidates,omitempty"`
	ErrorKind  resolve.Kind   `json:"error_kind,omitempty"`
	Changed    bool           `json:"changed"`
}

func (r *Result) advance(stage State) {
	r.Stage = stage
	r.State = stage
}

// resolvedPaths lists the distinct resolved paths in hint order.
func (r *Result) resolvedPaths() []string {
	seen := map[string]struct{}{}
	paths := []string{}
	for _, f := range r.Files {
		if f.Resolved == "" {
			continue
		}
		if _, ok := seen[f.Resolved]; ok {
			continue
		}
		seen[f.Resolved] = struct{}{}
		paths = append(paths, f.Resolved)
	}
	return paths
}

// Succeeded reports whether the attempt closed the task.
func (r *Result) Succeeded() bool {
	return r.State == StateTaskClosed
}
