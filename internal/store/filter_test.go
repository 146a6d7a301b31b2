package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/aggregator-service/internal/model"
)

func TestPostingFilter_Normalized(t *testing.T) {
	f, err := PostingFilter{}.Normalized()
	require.NoError(t, err)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageSize, f.Limit)
	assert.Equal(t, SortByPostedAt, f.SortBy)
	assert.Equal(t, "desc", f.SortOrder)
	assert.Zero(t, f.Offset())

	f, err = PostingFilter{Page: 3, Limit: 500, SortBy: "lastSyncedAt", SortOrder: "ASC", Keyword: "  go "}.Normalized()
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, f.Limit)
	assert.Equal(t, SortByLastSyncedAt, f.SortBy)
	assert.Equal(t, "asc", f.SortOrder)
	assert.Equal(t, "go", f.Keyword)
	assert.Equal(t, 200, f.Offset())

	for _, bad := range []PostingFilter{{SortBy: "title; DROP TABLE"}, {SortOrder: "sideways"}} {
		_, err := bad.Normalized()
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestBuildPostingWhere(t *testing.T) {
	where, args := buildPostingWhere(PostingFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	active := true
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args = buildPostingWhere(PostingFilter{
		Active:      &active,
		Source:      model.SourceLever,
		Location:    "100%_remote",
		Keyword:     "Go",
		PostedSince: since,
	})
	assert.Equal(t,
		" WHERE is_active = $1 AND source = $2 AND location ILIKE $3"+
			" AND (title ILIKE $4 OR company_name ILIKE $4 OR description ILIKE $4 OR $5 = ANY(skills))"+
			" AND posted_at >= $6",
		where)
	assert.Equal(t, []any{true, "lever", `%100\%\_remote%`, "%Go%", "go", since}, args)
}
