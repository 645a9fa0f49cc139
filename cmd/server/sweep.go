package main

import (
	"fmt"
	"time"

	"github.com/kdimtricp/vingest/internal/config"
	"github.com/kdimtricp/vingest/internal/staging"
	"github.com/spf13/cobra"
)

var sweepAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove staging files left behind by interrupted uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		setupLogger(cfg)

		age := cfg.Staging.SweepAge
		if cmd.Flags().Changed("older-than") {
			age = sweepAge
		}

		store, err := staging.NewStore(cfg.Staging.Dir)
		if err != nil {
			return err
		}
		n, err := store.Sweep(age)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staging files from %s\n", n, store.Dir())
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepAge, "older-than", 24*time.Hour, "Only remove files older than this")
}
