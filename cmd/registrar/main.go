// Command registrar runs the class-registration service: the HTTP
// boundary plus the periodic reconciliation and waitlist jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "registrar",
	Short: "Registrar - class registration, booking lifecycle, and publishing sync",
	Long: `Registrar integrates the Record Store, the payment processor, and the
Content Publishing System for a class-registration business. It converts
payment confirmations into seat-count mutations, drives bookings through
their payment-status lifecycle, and keeps the published copy of class and
purchase data eventually consistent via periodic reconciliation.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Registrar version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(waitlistCmd)
}
