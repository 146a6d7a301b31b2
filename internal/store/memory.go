package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"jobmate/aggregator-service/internal/model"
)

// ─── Postings ────────────────────────────────────────────────────────────────

// MemoryPostingStore is an in-process PostingStore with the same upsert and
// aging rules as the PostgreSQL implementation.
type MemoryPostingStore struct {
	mu     sync.RWMutex
	byKey  map[model.PostingKey]*model.Posting
	nextID int64
	now    func() time.Time
}

// NewMemoryPostingStore returns an empty store.
func NewMemoryPostingStore() *MemoryPostingStore {
	return &MemoryPostingStore{
		byKey: make(map[model.PostingKey]*model.Posting),
		now:   time.Now,
	}
}

// SetClock replaces the clock used for created_at and updated_at.
func (s *MemoryPostingStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryPostingStore) FindByKey(_ context.Context, key model.PostingKey) (*model.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[key]
	if !ok {
		return nil, ErrPostingNotFound
	}
	return clonePosting(p), nil
}

func (s *MemoryPostingStore) Upsert(_ context.Context, p model.Posting) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := clonePosting(&p)
	stored.IsActive = true
	stored.UpdatedAt = now
	if stored.Skills == nil {
		stored.Skills = []string{}
	}

	existing, ok := s.byKey[p.Key()]
	if !ok {
		s.nextID++
		stored.ID = s.nextID
		stored.CreatedAt = now
		s.byKey[p.Key()] = stored
		return UpsertResult{Inserted: true, Posting: *clonePosting(stored)}, nil
	}

	stored.ID = existing.ID
	stored.CreatedAt = existing.CreatedAt
	if !stored.LastSyncedAt.After(existing.LastSyncedAt) {
		stored.LastSyncedAt = existing.LastSyncedAt.Add(time.Microsecond)
	}
	s.byKey[p.Key()] = stored
	return UpsertResult{Inserted: false, Posting: *clonePosting(stored)}, nil
}

func (s *MemoryPostingStore) MarkInactiveOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.byKey {
		if p.IsActive && p.LastSyncedAt.Before(cutoff) {
			p.IsActive = false
			p.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *MemoryPostingStore) CountActive(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.byKey {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *MemoryPostingStore) Query(_ context.Context, f PostingFilter) ([]model.Posting, int, error) {
	f, err := f.Normalized()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]model.Posting, 0)
	for _, p := range s.byKey {
		if f.matches(p) {
			matched = append(matched, *clonePosting(p))
		}
	}
	s.mu.RUnlock()

	sortKey := func(p model.Posting) time.Time {
		if f.SortBy == SortByLastSyncedAt {
			return p.LastSyncedAt
		}
		return p.PostedAt
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !sortKey(a).Equal(sortKey(b)) {
			if f.SortOrder == "asc" {
				return sortKey(a).Before(sortKey(b))
			}
			return sortKey(a).After(sortKey(b))
		}
		if f.SortOrder == "asc" {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (s *MemoryPostingStore) Get(_ context.Context, id int64) (*model.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byKey {
		if p.ID == id {
			return clonePosting(p), nil
		}
	}
	return nil, ErrPostingNotFound
}

func (s *MemoryPostingStore) Deactivate(_ context.Context, key model.PostingKey) (*model.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[key]
	if !ok {
		return nil, ErrPostingNotFound
	}
	p.IsActive = false
	p.UpdatedAt = s.now().UTC()
	return clonePosting(p), nil
}

// Len returns the number of stored postings, active or not.
func (s *MemoryPostingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

func clonePosting(p *model.Posting) *model.Posting {
	c := *p
	c.Skills = slices.Clone(p.Skills)
	c.RawPayload = slices.Clone(p.RawPayload)
	return &c
}

// ─── Sources ─────────────────────────────────────────────────────────────────

// MemorySourceRegistry is an in-process SourceRegistry.
type MemorySourceRegistry struct {
	mu      sync.RWMutex
	sources map[model.SourceName]*model.SourceRecord
	audit   []model.AuditEntry
	now     func() time.Time
}

// NewMemorySourceRegistry returns a registry holding the given records.
func NewMemorySourceRegistry(records ...model.SourceRecord) *MemorySourceRegistry {
	r := &MemorySourceRegistry{
		sources: make(map[model.SourceName]*model.SourceRecord, len(records)),
		now:     time.Now,
	}
	for _, rec := range records {
		c := cloneSource(&rec)
		if c.ConnectionConfig == nil {
			c.ConnectionConfig = model.ConnectionConfig{}
		}
		r.sources[rec.Name] = c
	}
	return r
}

// SetClock replaces the clock used for toggle and audit timestamps.
func (r *MemorySourceRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemorySourceRegistry) ListEnabled(_ context.Context) ([]model.SourceRecord, error) {
	return r.snapshot(true), nil
}

func (r *MemorySourceRegistry) List(_ context.Context) ([]model.SourceRecord, error) {
	return r.snapshot(false), nil
}

func (r *MemorySourceRegistry) snapshot(enabledOnly bool) []model.SourceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SourceRecord, 0, len(r.sources))
	for _, rec := range r.sources {
		if enabledOnly && !rec.IsEnabled {
			continue
		}
		out = append(out, *cloneSource(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *MemorySourceRegistry) Get(_ context.Context, name model.SourceName) (*model.SourceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sources[name]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return cloneSource(rec), nil
}

func (r *MemorySourceRegistry) RecordRunOutcome(_ context.Context, o model.RunOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sources[o.Name]
	if !ok {
		return ErrSourceNotFound
	}
	at := o.At
	status := o.Status
	rec.LastRunAt = &at
	rec.LastRunStatus = &status
	rec.LastRunError = nil
	if o.Error != "" {
		msg := o.Error
		rec.LastRunError = &msg
	}
	rec.LastRunFetchCount = o.FetchCount
	rec.TotalFetched += int64(o.NewCount)
	rec.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemorySourceRegistry) Toggle(_ context.Context, name model.SourceName, enabled bool, actorID string) (*model.SourceRecord, error) {
	if actorID == "" {
		return nil, &ValidationError{Msg: "actor id is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sources[name]
	if !ok {
		return nil, ErrSourceNotFound
	}
	now := r.now().UTC()
	actor := actorID
	rec.IsEnabled = enabled
	rec.EnabledBy = &actor
	rec.EnabledAt = &now
	rec.UpdatedAt = now
	r.audit = append(r.audit, model.AuditEntry{
		ID:        int64(len(r.audit) + 1),
		Source:    name,
		Action:    auditAction(enabled),
		ActorID:   actorID,
		CreatedAt: now,
	})
	return cloneSource(rec), nil
}

func (r *MemorySourceRegistry) Seed(_ context.Context, seeds []model.SourceSeed) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	inserted := 0
	for _, s := range seeds {
		cfg := model.ConnectionConfig{}
		for k, v := range s.ConnectionConfig {
			cfg[k] = v
		}
		if rec, ok := r.sources[s.Name]; ok {
			rec.DisplayName = s.DisplayName
			rec.ConnectionConfig = cfg
			rec.UpdatedAt = now
			continue
		}
		r.sources[s.Name] = &model.SourceRecord{
			Name:             s.Name,
			DisplayName:      s.DisplayName,
			IsEnabled:        s.Enabled,
			ConnectionConfig: cfg,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		inserted++
	}
	return inserted, nil
}

func (r *MemorySourceRegistry) AuditLog(_ context.Context, name model.SourceName, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AuditEntry, 0)
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if r.audit[i].Source == name {
			out = append(out, r.audit[i])
		}
	}
	return out, nil
}

func cloneSource(rec *model.SourceRecord) *model.SourceRecord {
	c := *rec
	if rec.ConnectionConfig != nil {
		c.ConnectionConfig = make(model.ConnectionConfig, len(rec.ConnectionConfig))
		for k, v := range rec.ConnectionConfig {
			c.ConnectionConfig[k] = v
		}
	}
	return &c
}
