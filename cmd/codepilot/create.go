package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codepilot/internal/api"
	"codepilot/internal/config"
)

type createCmdOptions struct {
	targetRepo string
	filePath   string
}

func newCreateCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	opts := &createCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create <message...>",
		Short: "Create a task from a free-text change request",
		Long: `Create a task from a free-text change request.

The message is sent to the AI provider, which turns it into a structured task.
Use "-" as the only argument to read the message from stdin, or -f to read a
markdown file whose optional YAML front matter sets target_repo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCreateRequest(cmd.InOrStdin(), opts, args)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				task, err := client.CreateFromMessage(cmd.Context(), req)
				if err != nil {
					return err
				}
				if out.structured() {
					return out.write(task)
				}
				return writePlain("%s\n", task.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.targetRepo, "repo", "", "target repository URL (defaults to the server's target_repo)")
	cmd.Flags().StringVarP(&opts.filePath, "file", "f", "", "markdown file holding the change request")
	return cmd
}

func buildCreateRequest(stdin io.Reader, opts *createCmdOptions, args []string) (api.FromMessageRequest, error) {
	var req api.FromMessageRequest

	switch {
	case opts.filePath != "":
		if len(args) > 0 {
			return req, errors.New("--file cannot be combined with a message argument")
		}
		data, err := os.ReadFile(opts.filePath)
		if err != nil {
			return req, err
		}
		parsed, err := parseRequestMarkdown(string(data))
		if err != nil {
			return req, fmt.Errorf("parse %s: %w", opts.filePath, err)
		}
		req = parsed
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("read stdin: %w", err)
		}
		req.Message = string(data)
	default:
		req.Message = strings.Join(args, " ")
	}

	if opts.targetRepo != "" {
		req.TargetRepo = opts.targetRepo
	}
	req.Message = strings.TrimSpace(req.Message)
	req.TargetRepo = strings.TrimSpace(req.TargetRepo)
	if req.Message == "" {
		return req, errors.New("message is required")
	}
	return req, nil
}
