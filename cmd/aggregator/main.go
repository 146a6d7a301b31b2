// Command aggregator runs the job-posting aggregator: the long-running
// service (serve) and the operator commands around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/config"
	"jobmate/aggregator-service/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "aggregator",
	Short:         "Job posting aggregator service",
	Long:          "Pulls postings from Greenhouse, Lever and Adzuna, normalizes them and keeps a deduplicated catalog in PostgreSQL.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	config.LoadDotEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and builds the process logger.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log.With(logger.String("service", "aggregator-service")), nil
}
