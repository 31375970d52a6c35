package main

import (
	"github.com/spf13/cobra"

	"codepilot/internal/api"
	"codepilot/internal/config"
)

func newShowCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show task details and run history",
		Args:  requireTaskID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				task, err := client.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return out.write(task)
				}
				return writeTaskDetail(task)
			})
		},
	}
}
