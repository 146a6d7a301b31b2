package model

import "time"

// SourceOutcome is the per-source line of a RunReport.
type SourceOutcome struct {
	Name         SourceName `json:"name"`
	Status       RunStatus  `json:"status"`
	FetchCount   int        `json:"fetchCount"`
	NewCount     int        `json:"newCount"`
	UpdatedCount int        `json:"updatedCount"`
	FailedCount  int        `json:"failedCount"`
	// ExcludedCount counts postings dropped by the source's exclude terms.
	ExcludedCount int    `json:"excludedCount"`
	Error         string `json:"error,omitempty"`
	// RecordError is set when the outcome could not be written to the registry.
	RecordError string `json:"recordError,omitempty"`
}

// RunReport is the result of one full run across all enabled sources plus the
// staleness sweep.
type RunReport struct {
	RunID       string          `json:"runId"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Sources     []SourceOutcome `json:"sources"`
	TotalNew    int             `json:"totalNew"`
	Deactivated int64           `json:"deactivated"`
	SweepError  string          `json:"sweepError,omitempty"`
}

// Outcome returns the outcome recorded for name, if the source was part of the run.
func (r *RunReport) Outcome(name SourceName) (SourceOutcome, bool) {
	for _, o := range r.Sources {
		if o.Name == name {
			return o, true
		}
	}
	return SourceOutcome{}, false
}

// Duration is the wall-clock time the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
