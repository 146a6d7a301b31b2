package model

import (
	"fmt"
	"os"
	"regexp"
	"time"
)

// RunStatus values mirror the run_status enum in PostgreSQL.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	// RunStatusPartial means the fetch succeeded but some records could not be
	// normalized.
	RunStatusPartial RunStatus = "partial"
)

// ParseRunStatus converts a raw string to a RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	st := RunStatus(s)
	switch st {
	case RunStatusSuccess, RunStatusFailed, RunStatusPartial:
		return st, nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// ConnectionConfig holds the opaque per-source parameters (board tokens, site
// slugs, credentials). Values may reference environment variables as ${NAME}
// so that secrets never live in the database or in code.
type ConnectionConfig map[string]string

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve returns a copy with every ${NAME} reference expanded through lookup.
// Only the braced form is a reference; any other "$" is kept literally so that
// opaque keys and tokens survive. Unset variables expand to the empty string,
// which adapters then report as a missing parameter.
func (c ConnectionConfig) Resolve(lookup func(string) (string, bool)) ConnectionConfig {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make(ConnectionConfig, len(c))
	for k, v := range c {
		out[k] = envRefPattern.ReplaceAllStringFunc(v, func(ref string) string {
			val, _ := lookup(ref[2 : len(ref)-1])
			return val
		})
	}
	return out
}

// SourceRecord is one row of the job_sources table.
type SourceRecord struct {
	Name              SourceName       `json:"name"`
	DisplayName       string           `json:"displayName"`
	IsEnabled         bool             `json:"isEnabled"`
	ConnectionConfig  ConnectionConfig `json:"connectionConfig"`
	LastRunAt         *time.Time       `json:"lastRunAt"`
	LastRunStatus     *RunStatus       `json:"lastRunStatus"`
	LastRunError      *string          `json:"lastRunError"`
	TotalFetched      int64            `json:"totalFetched"`
	LastRunFetchCount int              `json:"lastRunFetchCount"`
	EnabledBy         *string          `json:"enabledBy"`
	EnabledAt         *time.Time       `json:"enabledAt"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// RunOutcome is what the orchestrator writes back to the registry after
// processing one source.
type RunOutcome struct {
	Name       SourceName
	Status     RunStatus
	Error      string
	FetchCount int
	NewCount   int
	At         time.Time
}

// SourceSeed describes a source as declared in the seed file.
type SourceSeed struct {
	Name             SourceName       `yaml:"name" validate:"required"`
	DisplayName      string           `yaml:"display_name" validate:"required"`
	Enabled          bool             `yaml:"enabled"`
	ConnectionConfig ConnectionConfig `yaml:"connection"`
}

// AuditAction mirrors the admin_action values written on toggles.
type AuditAction string

const (
	AuditSourceEnabled  AuditAction = "source_enabled"
	AuditSourceDisabled AuditAction = "source_disabled"
)

// AuditEntry is one row of source_audit_log.
type AuditEntry struct {
	ID        int64       `json:"id"`
	Source    SourceName  `json:"source"`
	Action    AuditAction `json:"action"`
	ActorID   string      `json:"actorId"`
	CreatedAt time.Time   `json:"createdAt"`
}
