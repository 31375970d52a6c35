package api

import (
	"encoding/json"

	"codepilot/internal/models"
)

// ErrorResponse is a generic JSON error wrapper. Details carries structured
// context such as the apply result of a failed attempt.
type ErrorResponse struct {
	Error     string          `json:"error"`
	Code      string          `json:"code,omitempty"`
	ErrorCode int             `json:"error_code,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// FromMessageRequest is the JSON payload of POST /tasks/from-message.
type FromMessageRequest struct {
	Message    string `json:"message"`
	TargetRepo string `json:"target_repo,omitempty"`
}

// TaskListResponse is the response from GET /tasks.
type TaskListResponse struct {
	Count int                  `json:"count"`
	Items []models.TaskSummary `json:"items"`
}

// ApplyResponse describes one apply attempt.
type ApplyResponse struct {
	TaskID    string              `json:"task_id"`
	State     string              `json:"state"`
	Stage     string              `json:"stage"`
	Branch    string              `json:"branch,omitempty"`
	Commit    string              `json:"commit,omitempty"`
	Files     []ApplyFileResponse `json:"files"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// ApplyFileResponse is the resolution and generation outcome of one file hint.
type ApplyFileResponse struct {
	Requested  string   `json:"requested"`
	Resolved   string   `json:"resolved,omitempty"`
	Method     string   `json:"method,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Changed    bool     `json:"changed"`
}

// Health check statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthError    = "error"
	HealthSkipped  = "skipped"
)

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}
