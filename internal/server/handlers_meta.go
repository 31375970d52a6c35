package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"codepilot/internal/api"
)

const healthProbeTimeout = 10 * time.Second

var errNoTargetRepo = errors.New("target repository is not configured")

// handleHealth reports backend liveness, AI service reachability, task store
// writability and target repository configuration. Checks run concurrently.
// With ?shallow=true remote probes are skipped.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	shallow, err := queryBool(r, "shallow")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var (
		mu     sync.Mutex
		checks = map[string]api.HealthCheck{}
		g      errgroup.Group
	)
	probe := func(name string, fn func(ctx context.Context) (string, error)) {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			defer cancel()

			start := time.Now()
			status, err := fn(ctx)
			check := api.HealthCheck{Status: status, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				check.Status = api.HealthError
				check.Error = err.Error()
			}

			mu.Lock()
			checks[name] = check
			mu.Unlock()
			return nil
		})
	}

	probe("backend", func(context.Context) (string, error) {
		return api.HealthOK, nil
	})
	probe("task_store", func(ctx context.Context) (string, error) {
		if err := s.store.Ping(ctx); err != nil {
			return "", err
		}
		return api.HealthOK, s.store.Writable()
	})
	probe("ai_service", func(ctx context.Context) (string, error) {
		if shallow || s.ai == nil {
			return api.HealthSkipped, nil
		}
		return api.HealthOK, s.ai.Ping(ctx)
	})
	probe("target_repo", func(ctx context.Context) (string, error) {
		if s.targetRepo == "" {
			return "", errNoTargetRepo
		}
		if shallow || s.repos == nil {
			return api.HealthOK, nil
		}
		return api.HealthOK, s.repos.Probe(ctx, s.targetRepo)
	})
	_ = g.Wait()

	resp := api.HealthResponse{Status: api.HealthOK, Checks: checks}
	for name, check := range checks {
		if check.Status == api.HealthError {
			resp.Status = api.HealthDegraded
			s.log().Warn("health check failed", "check", name, "error", check.Error)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
