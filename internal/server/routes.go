package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Tasks collection.
	mux.HandleFunc("POST /tasks/from-message", s.handleCreateFromMessage)
	mux.HandleFunc("GET /tasks", s.handleListTasks)

	// Single task.
	mux.HandleFunc("GET /tasks/{task_id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/{task_id}/apply-change", s.handleApplyChange)

	return mux
}
