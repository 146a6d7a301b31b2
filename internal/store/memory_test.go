package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/aggregator-service/internal/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func posting(source model.SourceName, id string, syncedAt time.Time) model.Posting {
	return model.Posting{
		ExternalID:   id,
		Source:       source,
		Title:        "Engineer " + id,
		CompanyName:  "Acme",
		Location:     "Berlin",
		JobType:      model.JobTypeFullTime,
		WorkMode:     model.WorkModeOnsite,
		Skills:       []string{"go"},
		ApplyURL:     "https://example.com/" + id,
		PostedAt:     syncedAt,
		LastSyncedAt: syncedAt,
		RawPayload:   []byte(`{"id":"` + id + `"}`),
	}
}

// ── Upsert ─────────────────────────────────────────────────────────────────

func TestMemoryUpsert_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()
	s.SetClock(func() time.Time { return t0 })

	res, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0))
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, int64(1), res.Posting.ID)
	assert.Equal(t, t0, res.Posting.CreatedAt)

	changed := posting(model.SourceLever, "a", t0.Add(time.Hour))
	changed.Title = "Staff Engineer"
	changed.RawPayload = []byte(`{"new":true}`)
	s.SetClock(func() time.Time { return t0.Add(time.Hour) })

	res, err = s.Upsert(ctx, changed)
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, int64(1), res.Posting.ID)
	assert.Equal(t, "Staff Engineer", res.Posting.Title)
	assert.JSONEq(t, `{"new":true}`, string(res.Posting.RawPayload))
	assert.Equal(t, t0, res.Posting.CreatedAt, "created_at is first-seen")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryUpsert_LastSyncedStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()

	first, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0))
	require.NoError(t, err)

	// Same timestamp, then one from the past: both must still move forward.
	second, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0))
	require.NoError(t, err)
	assert.True(t, second.Posting.LastSyncedAt.After(first.Posting.LastSyncedAt))

	third, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0.Add(-time.Hour)))
	require.NoError(t, err)
	assert.True(t, third.Posting.LastSyncedAt.After(second.Posting.LastSyncedAt))
}

func TestMemoryUpsert_SameExternalIDDifferentSource(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()

	r1, err := s.Upsert(ctx, posting(model.SourceLever, "42", t0))
	require.NoError(t, err)
	r2, err := s.Upsert(ctx, posting(model.SourceGreenhouse, "42", t0))
	require.NoError(t, err)

	assert.True(t, r1.Inserted)
	assert.True(t, r2.Inserted)
	assert.NotEqual(t, r1.Posting.ID, r2.Posting.ID)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryUpsert_Reactivates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()
	_, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0))
	require.NoError(t, err)

	n, err := s.MarkInactiveOlderThan(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := s.Upsert(ctx, posting(model.SourceLever, "a", t0.Add(48*time.Hour)))
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.True(t, res.Posting.IsActive)
	assert.Equal(t, t0.Add(48*time.Hour), res.Posting.LastSyncedAt)
}

// ── Staleness ──────────────────────────────────────────────────────────────

func TestMemoryMarkInactiveOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()
	for i, age := range []time.Duration{31 * 24 * time.Hour, 29 * 24 * time.Hour, time.Hour} {
		_, err := s.Upsert(ctx, posting(model.SourceLever, string(rune('a'+i)), t0.Add(-age)))
		require.NoError(t, err)
	}

	n, err := s.MarkInactiveOlderThan(ctx, t0.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	old, err := s.FindByKey(ctx, model.PostingKey{Source: model.SourceLever, ExternalID: "a"})
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	// Already inactive rows are not counted twice.
	n, err = s.MarkInactiveOlderThan(ctx, t0.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ── Reads ──────────────────────────────────────────────────────────────────

func TestMemoryFindGetDeactivate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()
	res, err := s.Upsert(ctx, posting(model.SourceAdzuna, "x", t0))
	require.NoError(t, err)

	_, err = s.FindByKey(ctx, model.PostingKey{Source: model.SourceAdzuna, ExternalID: "missing"})
	assert.ErrorIs(t, err, ErrPostingNotFound)

	got, err := s.Get(ctx, res.Posting.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.ExternalID)

	// Returned values are copies.
	got.Skills[0] = "mutated"
	again, _ := s.Get(ctx, res.Posting.ID)
	assert.Equal(t, []string{"go"}, again.Skills)

	_, err = s.Get(ctx, 999)
	assert.True(t, errors.Is(err, ErrPostingNotFound))

	deactivated, err := s.Deactivate(ctx, res.Posting.Key())
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = s.Deactivate(ctx, model.PostingKey{Source: model.SourceAdzuna, ExternalID: "missing"})
	assert.ErrorIs(t, err, ErrPostingNotFound)
}

func TestMemoryQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostingStore()

	remote := posting(model.SourceGreenhouse, "r1", t0)
	remote.Location = "Remote - EU"
	remote.WorkMode = model.WorkModeRemote
	remote.Skills = []string{"python"}

	contract := posting(model.SourceLever, "c1", t0.Add(-10*24*time.Hour))
	contract.JobType = model.JobTypeContract
	contract.CompanyName = "Initech"

	plain := posting(model.SourceLever, "p1", t0.Add(-time.Hour))

	for _, p := range []model.Posting{remote, contract, plain} {
		_, err := s.Upsert(ctx, p)
		require.NoError(t, err)
	}
	_, err := s.Deactivate(ctx, plain.Key())
	require.NoError(t, err)

	active := true
	cases := []struct {
		name   string
		filter PostingFilter
		want   []string
	}{
		{"all newest first", PostingFilter{}, []string{"r1", "p1", "c1"}},
		{"oldest first", PostingFilter{SortOrder: "asc"}, []string{"c1", "p1", "r1"}},
		{"active only", PostingFilter{Active: &active}, []string{"r1", "c1"}},
		{"by source", PostingFilter{Source: model.SourceLever}, []string{"p1", "c1"}},
		{"by job type", PostingFilter{JobType: model.JobTypeContract}, []string{"c1"}},
		{"by work mode", PostingFilter{WorkMode: model.WorkModeRemote}, []string{"r1"}},
		{"location contains", PostingFilter{Location: "remote"}, []string{"r1"}},
		{"company contains", PostingFilter{Company: "INIT"}, []string{"c1"}},
		{"keyword in skills", PostingFilter{Keyword: "Python"}, []string{"r1"}},
		{"keyword in title", PostingFilter{Keyword: "engineer p1"}, []string{"p1"}},
		{"posted since", PostingFilter{PostedSince: t0.Add(-2 * time.Hour)}, []string{"r1", "p1"}},
		{"paged", PostingFilter{Page: 2, Limit: 2}, []string{"c1"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, total, err := s.Query(ctx, c.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ExternalID)
			}
			assert.Equal(t, c.want, ids)
			if c.filter.Page == 0 {
				assert.Equal(t, len(c.want), total)
			} else {
				assert.Equal(t, 3, total)
			}
		})
	}

	_, _, err = s.Query(ctx, PostingFilter{SortBy: "title"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

// ── Source registry ────────────────────────────────────────────────────────

func TestMemoryRegistry_RecordRunOutcome(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySourceRegistry(
		model.SourceRecord{Name: model.SourceLever, DisplayName: "Lever", IsEnabled: true},
		model.SourceRecord{Name: model.SourceGreenhouse, DisplayName: "Greenhouse"},
	)

	enabled, err := r.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, model.SourceLever, enabled[0].Name)

	require.NoError(t, r.RecordRunOutcome(ctx, model.RunOutcome{
		Name: model.SourceLever, Status: model.RunStatusSuccess, FetchCount: 5, NewCount: 3, At: t0,
	}))
	require.NoError(t, r.RecordRunOutcome(ctx, model.RunOutcome{
		Name: model.SourceLever, Status: model.RunStatusFailed, Error: "boom", At: t0.Add(time.Hour),
	}))

	rec, err := r.Get(ctx, model.SourceLever)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.TotalFetched)
	assert.Equal(t, 0, rec.LastRunFetchCount)
	require.NotNil(t, rec.LastRunStatus)
	assert.Equal(t, model.RunStatusFailed, *rec.LastRunStatus)
	require.NotNil(t, rec.LastRunError)
	assert.Equal(t, "boom", *rec.LastRunError)
	assert.Equal(t, t0.Add(time.Hour), *rec.LastRunAt)

	// A success clears the previous error.
	require.NoError(t, r.RecordRunOutcome(ctx, model.RunOutcome{Name: model.SourceLever, Status: model.RunStatusSuccess, At: t0}))
	rec, _ = r.Get(ctx, model.SourceLever)
	assert.Nil(t, rec.LastRunError)

	err = r.RecordRunOutcome(ctx, model.RunOutcome{Name: model.SourceAdzuna, Status: model.RunStatusSuccess})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestMemoryRegistry_ToggleWritesAudit(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySourceRegistry(model.SourceRecord{Name: model.SourceLever, DisplayName: "Lever"})
	r.SetClock(func() time.Time { return t0 })

	rec, err := r.Toggle(ctx, model.SourceLever, true, "admin-1")
	require.NoError(t, err)
	assert.True(t, rec.IsEnabled)
	assert.Equal(t, "admin-1", *rec.EnabledBy)
	assert.Equal(t, t0, *rec.EnabledAt)

	_, err = r.Toggle(ctx, model.SourceLever, false, "admin-2")
	require.NoError(t, err)

	log, err := r.AuditLog(ctx, model.SourceLever, 10)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, model.AuditSourceDisabled, log[0].Action)
	assert.Equal(t, "admin-2", log[0].ActorID)
	assert.Equal(t, model.AuditSourceEnabled, log[1].Action)

	_, err = r.Toggle(ctx, model.SourceAdzuna, true, "admin-1")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = r.Toggle(ctx, model.SourceLever, true, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMemoryRegistry_Seed(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySourceRegistry()

	n, err := r.Seed(ctx, []model.SourceSeed{
		{Name: model.SourceGreenhouse, DisplayName: "Greenhouse", ConnectionConfig: model.ConnectionConfig{"board_token": "acme"}},
		{Name: model.SourceLever, DisplayName: "Lever", Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.Toggle(ctx, model.SourceGreenhouse, true, "admin")
	require.NoError(t, err)
	require.NoError(t, r.RecordRunOutcome(ctx, model.RunOutcome{Name: model.SourceGreenhouse, Status: model.RunStatusSuccess, NewCount: 7, At: t0}))

	// Re-seeding refreshes config but keeps the admin's toggle and run history.
	n, err = r.Seed(ctx, []model.SourceSeed{
		{Name: model.SourceGreenhouse, DisplayName: "Greenhouse Boards", ConnectionConfig: model.ConnectionConfig{"board_token": "globex"}},
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := r.Get(ctx, model.SourceGreenhouse)
	require.NoError(t, err)
	assert.Equal(t, "Greenhouse Boards", rec.DisplayName)
	assert.Equal(t, "globex", rec.ConnectionConfig["board_token"])
	assert.True(t, rec.IsEnabled)
	assert.Equal(t, int64(7), rec.TotalFetched)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
