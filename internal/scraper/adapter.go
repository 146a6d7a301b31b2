// Package scraper implements the upstream job-board adapters: fetching raw
// postings from each platform's public API and mapping them onto model.Posting.
package scraper

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"jobmate/aggregator-service/internal/model"
)

// RawRecord is one posting exactly as the upstream returned it, plus the
// context Normalize needs. Everything Normalize reads lives in the record,
// which is what keeps normalization deterministic.
type RawRecord struct {
	Source model.SourceName
	// Board is the per-source identifier the record was fetched with
	// (board token, site slug, country).
	Board string
	// CompanyHint is the configured company name, if any.
	CompanyHint string
	// FetchedAt is the ingestion time; used when upstream omits a posted date.
	FetchedAt time.Time
	Payload   json.RawMessage
}

// Params are the resolved connection parameters handed to Fetch.
type Params = model.ConnectionConfig

// Adapter is the capability implemented once per upstream platform.
type Adapter interface {
	Name() model.SourceName
	// Fetch retrieves the current postings for the given (already resolved)
	// connection parameters. It returns *SourceConfigError when required
	// parameters are missing and *SourceUnavailableError on network, HTTP or
	// response decoding failures.
	Fetch(ctx context.Context, params Params) ([]RawRecord, error)
	// Normalize maps one raw record onto the canonical shape. It is pure and
	// returns *NormalizationError only when the record is unusable.
	Normalize(rec RawRecord) (model.Posting, error)
}

// Set is the lookup table of adapters keyed by source name.
type Set struct {
	mu       sync.RWMutex
	adapters map[model.SourceName]Adapter
}

// NewSet returns a Set holding the given adapters.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[model.SourceName]Adapter, len(adapters))}
	for _, a := range adapters {
		s.Register(a)
	}
	return s
}

// Register adds or replaces the adapter for a.Name().
func (s *Set) Register(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[a.Name()] = a
}

// Lookup returns the adapter registered for name.
func (s *Set) Lookup(name model.SourceName) (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[name]
	return a, ok
}

// Names returns the registered source names in sorted order.
func (s *Set) Names() []model.SourceName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]model.SourceName, 0, len(s.adapters))
	for n := range s.adapters {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Defaults returns a Set with every built-in adapter. Each adapter gets its own
// HTTP client so that one slow platform cannot eat another's rate budget.
func Defaults(opts ClientOptions) *Set {
	return NewSet(
		NewGreenhouse(NewClient(opts)),
		NewLever(NewClient(opts)),
		NewAdzuna(NewClient(opts)),
	)
}
