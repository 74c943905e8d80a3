package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "simple-session",
		Short: "Session lifecycle service",
		Long: `simple-session issues, validates, extends and invalidates chat
sessions. Sessions live in PostgreSQL and are mirrored in Redis when
REDIS_URL is set.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (skipped if missing)")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newPurgeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
