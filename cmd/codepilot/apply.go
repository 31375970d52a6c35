package main

import (
	"errors"

	"github.com/spf13/cobra"

	"codepilot/internal/api"
	"codepilot/internal/config"
)

func newApplyCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id>",
		Short: "Generate the task's changes and push them to a new branch",
		Args:  requireTaskID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				res, err := client.ApplyChange(cmd.Context(), args[0])
				if err != nil {
					// Structured output still gets the partial result of a failed attempt.
					var apiErr *api.APIError
					if out.structured() && errors.As(err, &apiErr) {
						if partial, ok := apiErr.ApplyResult(); ok {
							_ = out.write(partial)
						}
					}
					return err
				}
				if out.structured() {
					return out.write(res)
				}
				return writeApplyResult(res)
			})
		},
	}
}
