package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codepilot/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg), newConfigSetCmd(cfg))
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get the effective value of a config key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %s)", key, strings.Join(config.AllowedKeys(), ", "))
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			if config.IsSecretKey(key) && !reveal {
				value = maskSecret(value)
			}
			return writePlain("%s\n", value)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secret values in full")
	return cmd
}

func newConfigSetCmd(cfg *config.Config) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			var path string
			var err error
			if global {
				path, err = config.GlobalPath()
			} else {
				path, err = config.ProjectPath()
			}
			if err != nil {
				return err
			}

			if err := config.SetKey(path, key, value); err != nil {
				return err
			}
			if !global && cfg != nil && cfg.TrustedProjectConfigPath == "" {
				fmt.Fprintf(os.Stderr, "note: %s is only read when CODEPILOT_TRUST_PROJECT_CONFIG=true\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.codepilot.toml)")
	return cmd
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
