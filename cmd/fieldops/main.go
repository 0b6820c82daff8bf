package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hsdfat8/fieldops/internal/config"
	"github.com/hsdfat8/fieldops/internal/observability"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fieldops",
	Short: "Offline-first field operations data service",
	Long: `fieldops keeps emergency-response records available when connectivity is poor.

Records live in a structured SQL backend with a JSON document fallback, facility
lookups run against a local location catalog, and a connectivity simulator drives
backend selection and power accounting.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./config.yaml, ./config/config.yaml, /etc/fieldops/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(harnessCmd)
}

// loadConfig loads configuration and applies the log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cfg.Logging.Level != "" {
		observability.SetLevel(cfg.Logging.Level)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
