package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codepilot/internal/api"
	"codepilot/internal/config"
)

func newHealthCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var shallow bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the server and its dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Health(cmd.Context(), shallow)
				if err != nil {
					return err
				}
				if out.structured() {
					if err := out.write(resp); err != nil {
						return err
					}
				} else if err := writeHealth(resp); err != nil {
					return err
				}
				if resp.Status != api.HealthOK {
					return fmt.Errorf("server is %s", resp.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&shallow, "shallow", false, "skip AI provider and repository probes")
	return cmd
}
