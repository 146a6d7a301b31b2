package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/config"
	"jobmate/aggregator-service/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := db.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

func printVersion(databaseURL string) error {
	version, dirty, err := db.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Printf("schema version %d (%s)\n", version, state)
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
