package main

import (
	"github.com/spf13/cobra"

	"codepilot/internal/api"
	"codepilot/internal/config"
	"codepilot/internal/models"
)

func newListCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.TaskStatus
			if status != "" {
				parsed, err := models.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				filter = parsed
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListTasks(cmd.Context())
				if err != nil {
					return err
				}
				resp = filterTasks(resp, filter, limit)
				if out.structured() {
					return out.write(resp)
				}
				return writeTaskList(resp.Items)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show tasks with this status (open, closed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")

	return cmd
}

// filterTasks narrows a listing client side; the API always returns every task.
func filterTasks(resp api.TaskListResponse, status models.TaskStatus, limit int) api.TaskListResponse {
	items := make([]models.TaskSummary, 0, len(resp.Items))
	for _, item := range resp.Items {
		if status != "" && item.Status != status {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return api.TaskListResponse{Count: len(items), Items: items}
}
