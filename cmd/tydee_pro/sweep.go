package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tydee/tydee-pro/internal/marketplace"
)

var sweepMemory bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one job expiry pass",
	Long:  "Expire every job still accepting bids that is older than sweeper.max_age, then exit. Intended for cron-style schedulers.",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepMemory, "memory", false, "Use the in-memory store instead of PostgreSQL")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, closeStore, err := openStore(ctx, cfg, sweepMemory)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	ids, err := marketplace.NewSweeper(store, locker, cfg.Sweeper.Interval, cfg.Sweeper.MaxAge).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Expired %d job(s)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
	}
	return nil
}
