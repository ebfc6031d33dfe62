package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// Load .env if present (ignore error if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rnav-scraper",
		Short: "Collect travel agency contacts from agenciasdeviajes.ar",
		Long: `rnav-scraper walks the agenciasdeviajes.ar directory page by page for
one or more provinces, repairs obfuscated email addresses and stores a
deduplicated dataset per province (CSV, optionally Google Sheets and
PostgreSQL). Addresses that cannot be repaired can be corrected by hand.

The hotels command collects the AHTRA hotel directory for one branch.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(
		newScrapeCmd(),
		newCorrectCmd(),
		newProvincesCmd(),
		newHotelsCmd(),
	)
	return rootCmd
}
