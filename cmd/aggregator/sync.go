package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/scheduler"
)

var syncJSON bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass now and print its report",
	Long: "Runs every enabled source once, then deactivates stale postings. " +
		"With REDIS_URL set the run takes the same lock as the service, so it is refused while a scheduled run is active.",
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Print the report as JSON instead of a table")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.scheduler.Trigger(cmd.Context(), scheduler.TriggerCLI)
	if report != nil {
		if syncJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		} else {
			renderReport(os.Stdout, report)
		}
	}
	return err
}
