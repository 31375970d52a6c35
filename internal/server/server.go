// Package server exposes the task store and the apply orchestrator over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"codepilot/internal/apply"
	"codepilot/internal/generator"
	"codepilot/internal/store"
)

const (
	apiTokenEnvKey         = "CODEPILOT_API_TOKEN"
	allowRemoteEnvKey      = "CODEPILOT_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 30 * time.Minute
	idleTimeout            = 60 * time.Second
	applyConcurrencyLimit  = 4
	createConcurrencyLimit = 4
)

// Applier runs one apply attempt for a task.
type Applier interface {
	Apply(ctx context.Context, taskID string) (*apply.Result, error)
}

// RepoSource lists and probes target repositories.
type RepoSource interface {
	RepoFiles(ctx context.Context, targetRepo string) ([]string, error)
	Probe(ctx context.Context, targetRepo string) error
}

// Deps are the collaborators the server delegates to.
type Deps struct {
	Store   store.TaskStore
	Applier Applier
	Specs   generator.SpecGenerator
	Repos   RepoSource
	// AI is probed by /health. Nil means the generator runs in process.
	AI generator.Pinger
	// TargetRepo is used for requests that do not name a repository.
	TargetRepo string
	// TokenHash is a bcrypt hash of the API token.
	TokenHash string
}

// Server wraps HTTP handlers for the codepilot API.
type Server struct {
	addr           string
	store          store.TaskStore
	applier        Applier
	specs          generator.SpecGenerator
	repos          RepoSource
	ai             generator.Pinger
	targetRepo     string
	logger         *slog.Logger
	apiToken       string
	tokenHash      string
	verifiedTokens sync.Map
	applyLimiter   chan struct{}
	createLimiter  chan struct{}
}

// New creates a new server instance.
func New(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:          addr,
		store:         deps.Store,
		applier:       deps.Applier,
		specs:         deps.Specs,
		repos:         deps.Repos,
		ai:            deps.AI,
		targetRepo:    strings.TrimSpace(deps.TargetRepo),
		logger:        logger,
		apiToken:      strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		tokenHash:     strings.TrimSpace(deps.TokenHash),
		applyLimiter:  make(chan struct{}, applyConcurrencyLimit),
		createLimiter: make(chan struct{}, createConcurrencyLimit),
	}
}

// Handler returns the full HTTP handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "auth", s.authRequired())
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
