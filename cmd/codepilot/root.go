package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codepilot/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	out := &outputOptions{}
	var logLevel string

	cmd := &cobra.Command{
		Use:           "codepilot",
		Short:         "CodePilot turns change requests into tasks and applies them as git branches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if out.json && out.yaml {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&out.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newCreateCmd(cfg, out),
		newListCmd(cfg, out),
		newShowCmd(cfg, out),
		newApplyCmd(cfg, out),
		newHealthCmd(cfg, out),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, out),
		newTokenCmd(),
	)

	return cmd
}
