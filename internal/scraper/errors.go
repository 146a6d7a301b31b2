package scraper

import (
	"fmt"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// SourceConfigError reports missing or invalid connection parameters. It is
// fatal for that source's run only.
type SourceConfigError struct {
	Source model.SourceName
	Params []string
	Msg    string
}

func (e *SourceConfigError) Error() string {
	if len(e.Params) > 0 {
		return fmt.Sprintf("%s: invalid connection config (%s): %s", e.Source, strings.Join(e.Params, ", "), e.Msg)
	}
	return fmt.Sprintf("%s: invalid connection config: %s", e.Source, e.Msg)
}

// SourceUnavailableError reports a failure reaching the upstream or reading its
// response. The source is retried on the next scheduled cycle.
type SourceUnavailableError struct {
	Source model.SourceName
	// URL is the request URL without its query string (which may hold credentials).
	URL        string
	StatusCode int
	Err        error
}

func (e *SourceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream %s returned %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream %s unavailable: %v", e.Source, e.URL, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// NormalizationError reports a single record that cannot be mapped onto the
// canonical shape. The record is skipped; the batch continues.
type NormalizationError struct {
	Source     model.SourceName
	ExternalID string
	Reason     string
	Err        error
}

func (e *NormalizationError) Error() string {
	id := e.ExternalID
	if id == "" {
		id = "<unknown>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: cannot normalize record %s: %s: %v", e.Source, id, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: cannot normalize record %s: %s", e.Source, id, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// TruncatedError reports that an upstream listing was cut off at the adapter's
// page limit. Fetch returns it together with the records it did read, so the
// run can keep them while flagging the source as incomplete.
type TruncatedError struct {
	Source model.SourceName
	Limit  int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s: listing truncated at %d records", e.Source, e.Limit)
}
