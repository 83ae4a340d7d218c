// Package main provides the entry point for the Tydee Pro marketplace API and the professional CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tydee/tydee-pro/internal/config"
	"github.com/tydee/tydee-pro/internal/observability"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "tydee_pro",
	Short:        "Tydee Pro marketplace server and professional CLI",
	Long:         "Tydee Pro runs the home-services marketplace API (jobs, bids, the start-PIN handshake and payouts) and offers a command line client for professionals.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file (environment overrides it)")
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	observability.Configure(cfg.Log.Level, cfg.Log.Format, nil)
	return cfg, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
