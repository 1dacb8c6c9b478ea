package main

import (
	"context"

	"github.com/spf13/cobra"
)

// One-shot variants of the periodic jobs, for operators and cron.

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.pool.Close()

		ctx, cancel := context.WithTimeout(ctx, a.cfg.Jobs.CycleTimeout)
		defer cancel()
		_, err = a.syncer.RunCycle(ctx)
		return err
	},
}

var waitlistCmd = &cobra.Command{
	Use:   "waitlist",
	Short: "Run one waitlist notification cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.pool.Close()

		ctx, cancel := context.WithTimeout(ctx, a.cfg.Jobs.CycleTimeout)
		defer cancel()
		return a.notifier.RunCycle(ctx)
	},
}
