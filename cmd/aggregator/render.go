package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"jobmate/aggregator-service/internal/model"
)

// renderReport writes one table row per source followed by a totals footer.
func renderReport(w io.Writer, r *model.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run %s (%s)", r.RunID, r.Duration().Round(time.Millisecond))
	t.AppendHeader(table.Row{"Source", "Status", "Fetched", "New", "Updated", "Failed", "Excluded", "Error"})
	for _, s := range r.Sources {
		errMsg := s.Error
		if s.RecordError != "" {
			errMsg = joinNonEmpty(errMsg, "record: "+s.RecordError)
		}
		t.AppendRow(table.Row{s.Name, s.Status, s.FetchCount, s.NewCount, s.UpdatedCount, s.FailedCount, s.ExcludedCount, truncate(errMsg, 60)})
	}
	footer := table.Row{"Total", "", "", r.TotalNew, "", "", "", fmt.Sprintf("%d deactivated", r.Deactivated)}
	if r.SweepError != "" {
		footer[7] = truncate("sweep: "+r.SweepError, 60)
	}
	t.AppendFooter(footer)
	t.Render()
}

// renderSources writes the registry state as a table.
func renderSources(w io.Writer, sources []model.SourceRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Display name", "Enabled", "Last run", "Status", "Last fetched", "Total fetched", "Last error"})
	for _, s := range sources {
		lastRun, status, lastErr := "never", "", ""
		if s.LastRunAt != nil {
			lastRun = s.LastRunAt.UTC().Format(time.RFC3339)
		}
		if s.LastRunStatus != nil {
			status = string(*s.LastRunStatus)
		}
		if s.LastRunError != nil {
			lastErr = truncate(*s.LastRunError, 60)
		}
		t.AppendRow(table.Row{s.Name, s.DisplayName, s.IsEnabled, lastRun, status, s.LastRunFetchCount, s.TotalFetched, lastErr})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
