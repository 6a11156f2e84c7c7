package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookbin/hookbin/internal/config"
	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/store"
	"github.com/hookbin/hookbin/internal/sweeper"
)

// newSweepCommand runs a single cleanup pass and exits. The server runs
// the same pass on a timer; this is for operators who want one now.
func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "sweep",
		Short:         "Delete expired, non-persistent endpoints once and exit",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)

			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()

			endpoints, requests, err := sweeper.New(st, log, cfg.App.SweepInterval).Sweep(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d expired endpoints and %d requests\n", endpoints, requests)
			return nil
		},
	}
}
