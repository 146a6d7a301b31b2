package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/model"
)

var sourcesActor string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show the source registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		sources, err := a.sources.List(cmd.Context())
		if err != nil {
			return err
		}
		renderSources(os.Stdout, sources)
		return nil
	},
}

func newToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: fmt.Sprintf("Mark a source as %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := model.ParseSourceName(args[0])
			if err != nil {
				return err
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.sources.Toggle(cmd.Context(), name, enabled, sourcesActor)
			if err != nil {
				return err
			}
			if err := a.events.PublishSourceToggled(cmd.Context(), rec, sourcesActor); err != nil {
				log.Warn("publish source toggled failed (non-fatal)", logger.Error(err))
			}
			renderSources(os.Stdout, []model.SourceRecord{*rec})
			return nil
		},
	}
}

func init() {
	sourcesCmd.PersistentFlags().StringVar(&sourcesActor, "actor", "cli", "Actor recorded in the audit log")
	sourcesCmd.AddCommand(newToggleCmd("enable", true), newToggleCmd("disable", false))
	rootCmd.AddCommand(sourcesCmd)
}
