package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"codepilot/internal/api"
	"codepilot/internal/apply"
	"codepilot/internal/generator"
	"codepilot/internal/models"
	"codepilot/internal/store"
)

func (s *Server) handleCreateFromMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFromMessageReq(w, r)
	if !ok {
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("message is required"), ErrCodeMissingRequired))
		return
	}

	s.withLimiter(w, r, s.createLimiter, "task creation", func() {
		task, err := s.createFromMessage(r.Context(), message, strings.TrimSpace(req.TargetRepo))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, task)
	})
}

func (s *Server) decodeFromMessageReq(w http.ResponseWriter, r *http.Request) (api.FromMessageRequest, bool) {
	var req api.FromMessageRequest
	mediaType := "application/json"
	if header := r.Header.Get("Content-Type"); header != "" {
		parsed, _, err := mime.ParseMediaType(header)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("invalid content type")))
			return req, false
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		if !s.decodeJSONReq(w, r, &req) {
			return req, false
		}
	case "text/plain":
		message, err := readTextBody(w, r)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return req, false
		}
		req.Message = message
	default:
		s.writeErrorReq(w, r, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", mediaType))
		return req, false
	}
	return req, true
}

// createFromMessage asks the spec generator for a task spec and stores it.
// The repository file list is context only; listing failures are logged.
func (s *Server) createFromMessage(ctx context.Context, message, targetRepo string) (*models.Task, error) {
	repo := targetRepo
	if repo == "" {
		repo = s.targetRepo
	}

	var files []string
	if s.repos != nil && repo != "" {
		listed, err := s.repos.RepoFiles(ctx, repo)
		if err != nil {
			s.log().Warn("list repository files", "repo", repo, "error", err)
		} else {
			files = listed
		}
	}

	if s.specs == nil {
		return nil, internalError(fmt.Errorf("spec generator is not configured"))
	}
	spec, err := s.specs.GenerateSpec(ctx, generator.SpecRequest{Message: message, RepoFiles: files})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, gatewayTimeout(err)
		}
		return nil, badGateway(err, ErrCodeGenerator)
	}
	spec, err = models.NormalizeSpec(spec, message)
	if err != nil {
		return nil, badGateway(fmt.Errorf("generator returned an invalid spec: %w", err), ErrCodeInvalidSpec)
	}

	task, err := s.store.CreateTask(ctx, spec, targetRepo)
	if err != nil {
		return nil, storeFailure(err)
	}
	s.log().Info("task created", "task_id", task.ID, "files", len(task.AffectedFiles))
	return task, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []models.TaskSummary{}
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Count: len(items), Items: items})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleApplyChange(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if s.applier == nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(fmt.Errorf("apply is not configured")))
		return
	}

	s.withLimiter(w, r, s.applyLimiter, "apply", func() {
		res, err := s.applier.Apply(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, applyError(err, res))
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	})
}

// applyError maps an apply failure to its HTTP form. The attempt result rides
// along as error details.
func applyError(err error, res *apply.Result) error {
	var mapped error

	var invalid *apply.InvalidStateError
	switch {
	case errors.As(err, &invalid):
		switch invalid.Reason {
		case apply.ReasonNotFound:
			mapped = notFound(err)
		case apply.ReasonNoFiles:
			mapped = conflictCode(err, ErrCodeNoAffectedFiles)
		default:
			mapped = conflictCode(err, ErrCodeTaskNotOpen)
		}
	case errors.Is(err, store.ErrConflict):
		mapped = conflictCode(err, ErrCodeTaskNotOpen)
	default:
		switch apply.Classify(err) {
		case models.KindAmbiguity:
			mapped = makeAPIError(http.StatusBadRequest, "ambiguous_path", ErrCodeAmbiguousPath, err)
		case models.KindBranchConflict:
			mapped = makeAPIError(http.StatusConflict, "branch_conflict", ErrCodeBranchConflict, err)
		case models.KindTimeout:
			mapped = gatewayTimeout(err)
		case models.KindGenerator:
			mapped = badGateway(err, ErrCodeGenerator)
		case models.KindWorkspace:
			mapped = badGateway(err, ErrCodeWorkspace)
		default:
			mapped = internalError(err)
		}
	}

	if res == nil {
		return mapped
	}
	return withDetails(mapped, res)
}
