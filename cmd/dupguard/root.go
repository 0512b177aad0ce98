package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
)

// NewRootCommand creates the dupguard command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Duplicate-submission guard",
		Long: `dupguard rejects repeated submissions of the same operation with the same
arguments within a time window, using an atomic claim in a shared store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel != "" && !contains(validLevels, opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, validLevels)
			}
			if opts.LogFormat != "" && !contains(validFormats, opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"path to a YAML or JSON config file (env overrides: DUPGUARD_*)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "",
		"log format: json, text (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewBurstCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
