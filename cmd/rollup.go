package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup <station> [date]",
	Short: "Recomputes the daily rollup for a station",
	Long:  "Recomputes the materialized daily statistics for a station. Date is YYYY-MM-DD, default today.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  rollup,
}

func init() {
	rootCmd.AddCommand(rollupCmd)
}

func rollup(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if len(args) == 2 {
		parsed, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("invalid date '%s': %w", args[1], err)
		}
		day = parsed
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	service, store, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return service.RecomputeDailyStats(context.Background(), args[0], day)
}
