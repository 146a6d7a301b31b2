package main

import (
	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/db"
	"jobmate/aggregator-service/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register the sources declared in SOURCES_FILE",
	Long:  "Inserts sources from the seed file that are not registered yet and refreshes the display name and connection of existing ones. Enabled flags and run history are left untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if cfg.MigrateOnStart {
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
		}
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a := &app{cfg: cfg, log: log, pool: pool, sources: store.NewSourceRegistry(pool)}
		defer a.close()
		return a.seed(ctx, true)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
