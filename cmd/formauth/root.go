package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the formauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formauth",
		Short: "Form login server with remember-me and verification codes",
		Long: `formauth serves a browser form login backed by Redis sessions,
rotating remember-me tokens and an optional verification code challenge.
Users live in PostgreSQL, or in memory when started with --dev.`,
		SilenceUsage: true,
	}

	defaults := defaultSettings()
	cmd.PersistentFlags().String("config", "", "YAML config file path")
	cmd.PersistentFlags().String("log-format", defaults.LogFormat, "log format: json or text")
	cmd.PersistentFlags().String("log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address (default $REDIS_ADDR)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
