package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"codepilot/internal/apply"
	"codepilot/internal/config"
	"codepilot/internal/executil"
	"codepilot/internal/generator"
	"codepilot/internal/git"
	"codepilot/internal/server"
	"codepilot/internal/store"
	"codepilot/internal/workspace"
)

// gitEnv keeps git from prompting for credentials on a headless server.
var gitEnv = []string{"GIT_TERMINAL_PROMPT=0"}

// aiBackend generates both task specs and file content.
type aiBackend interface {
	generator.ContentGenerator
	generator.SpecGenerator
}

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the codepilot API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := cfg.ValidateDeep(); err != nil {
				return err
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			gitExec := git.NewExecutor(cfg.Workspace.GitPath, &executil.RealExecutor{Env: gitEnv})
			workspaces := workspace.NewManager(gitExec, workspace.Config{
				Root:          cfg.Workspace.Root,
				DefaultBranch: cfg.Workspace.DefaultBranch,
				GitTimeout:    cfg.Apply.GitTimeout.Duration,
			})

			gen, pinger := newGenerator(cfg)
			if cfg.TargetRepo == "" {
				logger.Warn("no default target repository configured; tasks must name one")
			}

			orchestrator := apply.New(st, apply.FromManager(workspaces), gen, apply.Config{
				TargetRepo:      cfg.TargetRepo,
				Ignore:          cfg.Workspace.Ignore,
				AttemptTimeout:  cfg.Apply.AttemptTimeout.Duration,
				GenerateTimeout: cfg.Apply.GenerateTimeout.Duration,
				Author:          git.Author{Name: cfg.Apply.AuthorName, Email: cfg.Apply.AuthorEmail},
			})

			srv := server.New(addr, server.Deps{
				Store:      st,
				Applier:    orchestrator,
				Specs:      gen,
				Repos:      workspaces,
				AI:         pinger,
				TargetRepo: cfg.TargetRepo,
				TokenHash:  cfg.Auth.TokenHash,
			}, logger)
			return srv.ListenAndServe()
		},
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.TaskStore, error) {
	switch cfg.Store.Backend {
	case config.BackendJSON:
		logger.Info("opening task directory", "path", cfg.Store.Path)
		st, err := store.OpenDir(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		logger.Info("opening database", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// newGenerator returns the configured backend and, for remote providers, the
// pinger used by the health check.
func newGenerator(cfg *config.Config) (aiBackend, generator.Pinger) {
	if cfg.AI.Provider == config.ProviderStatic {
		return generator.Static{}, nil
	}
	client := generator.NewOpenAI(generator.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout.Duration,
	})
	return client, client
}
