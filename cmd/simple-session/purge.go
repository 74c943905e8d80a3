package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-session/internal/reaper"
)

func newPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete invalidated and expired sessions past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.SessionRetention
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := reaper.New(a.sessionsRepo, reaper.Config{
				Interval:  time.Hour,
				Retention: olderThan,
				Timeout:   5 * time.Minute,
			}, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			deleted, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", deleted)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (default: $SESSION_RETENTION)")
	return cmd
}
