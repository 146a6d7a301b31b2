// Package model defines the canonical data structures shared by the aggregator
// service: normalized postings, source records and run reports.
package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SourceName identifies an upstream platform. It is the first half of the
// posting dedup key.
type SourceName string

const (
	SourceGreenhouse SourceName = "greenhouse"
	SourceLever      SourceName = "lever"
	SourceAdzuna     SourceName = "adzuna"
)

var sourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// ParseSourceName validates a raw source name. Any lowercase slug is accepted;
// whether an adapter exists for it is decided by the adapter registry at run
// time.
func ParseSourceName(s string) (SourceName, error) {
	if !sourceNamePattern.MatchString(s) {
		return "", fmt.Errorf("invalid source name %q: want a lowercase slug", s)
	}
	return SourceName(s), nil
}

// JobType mirrors the job_type column.
type JobType string

const (
	JobTypeFullTime   JobType = "full-time"
	JobTypePartTime   JobType = "part-time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
)

// ParseJobType maps the many spellings used upstream ("Full Time", "full_time",
// "Intern", "Contractor", ...) onto a JobType. ok is false when nothing matched.
func ParseJobType(s string) (jt JobType, ok bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("_", "-", " ", "-").Replace(v)
	switch {
	case v == "":
		return "", false
	case strings.HasPrefix(v, "full"), v == "permanent":
		return JobTypeFullTime, true
	case strings.HasPrefix(v, "part"):
		return JobTypePartTime, true
	case strings.HasPrefix(v, "contract"), strings.HasPrefix(v, "temp"), v == "freelance":
		return JobTypeContract, true
	case strings.HasPrefix(v, "intern"):
		return JobTypeInternship, true
	}
	return "", false
}

// WorkMode mirrors the work_mode column.
type WorkMode string

const (
	WorkModeRemote WorkMode = "remote"
	WorkModeOnsite WorkMode = "onsite"
	WorkModeHybrid WorkMode = "hybrid"
)

// ParseWorkMode maps upstream workplace values ("on-site", "Remote", ...) onto a
// WorkMode. ok is false for empty or unspecified values.
func ParseWorkMode(s string) (wm WorkMode, ok bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "", "_", "", " ", "").Replace(v)
	switch v {
	case "remote":
		return WorkModeRemote, true
	case "onsite", "office", "inoffice":
		return WorkModeOnsite, true
	case "hybrid":
		return WorkModeHybrid, true
	}
	return "", false
}

// InferWorkMode applies the location rule used when upstream does not say:
// a location mentioning "remote" is remote, everything else is onsite.
func InferWorkMode(location string) WorkMode {
	if strings.Contains(strings.ToLower(location), "remote") {
		return WorkModeRemote
	}
	return WorkModeOnsite
}

// Posting is the canonical representation of one job advertisement,
// independent of the platform it came from.
type Posting struct {
	ID           int64           `json:"id,omitempty"`
	ExternalID   string          `json:"externalId" validate:"required"`
	Source       SourceName      `json:"source" validate:"required"`
	Title        string          `json:"title"`
	CompanyName  string          `json:"companyName"`
	Description  string          `json:"description"`
	Requirements string          `json:"requirements,omitempty"`
	Location     string          `json:"location"`
	JobType      JobType         `json:"jobType" validate:"required,oneof=full-time part-time contract internship"`
	WorkMode     WorkMode        `json:"workMode" validate:"required,oneof=remote onsite hybrid"`
	Skills       []string        `json:"skills"`
	ApplyURL     string          `json:"applyUrl" validate:"required,url"`
	PostedAt     time.Time       `json:"postedAt"`
	IsActive     bool            `json:"isActive"`
	LastSyncedAt time.Time       `json:"lastSyncedAt"`
	RawPayload   json.RawMessage `json:"rawPayload,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt,omitempty"`
}

// Key returns the dedup key of the posting.
func (p Posting) Key() PostingKey {
	return PostingKey{Source: p.Source, ExternalID: p.ExternalID}
}

// PostingKey is the (source, externalId) pair that uniquely identifies a posting.
type PostingKey struct {
	Source     SourceName
	ExternalID string
}

func (k PostingKey) String() string {
	return string(k.Source) + ":" + k.ExternalID
}
