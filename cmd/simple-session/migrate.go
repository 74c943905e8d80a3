package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-session/internal/config"
	"github.com/tendant/simple-session/internal/db/migrate"
)

var databaseURL string

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply or roll back the embedded schema migrations.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Database URL (default: $DATABASE_URL)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, migrate.Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, migrate.Down)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				v, dirty, err := migrate.Version(migrationDSN())
				if errors.Is(err, migrate.ErrNoChange) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", v, dirty)
				return nil
			},
		},
	)
	return cmd
}

// migrationDSN does not need the full service configuration, only the
// database URL.
func migrationDSN() string {
	if databaseURL != "" {
		return databaseURL
	}
	config.LoadEnvFiles(envFile)
	return os.Getenv("DATABASE_URL")
}

func runMigrate(cmd *cobra.Command, direction string) error {
	if err := migrate.Run(migrationDSN(), direction); err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", direction)
	return nil
}
