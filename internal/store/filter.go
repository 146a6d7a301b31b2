package store

import (
	"fmt"
	"strings"
	"time"

	"jobmate/aggregator-service/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	SortByPostedAt     = "posted_at"
	SortByLastSyncedAt = "last_synced_at"
)

// UpsertResult reports what Upsert did and the row as stored.
type UpsertResult struct {
	Inserted bool
	Posting  model.Posting
}

// PostingFilter selects postings for the read API. Zero values mean "any".
type PostingFilter struct {
	Active      *bool
	Source      model.SourceName
	JobType     model.JobType
	WorkMode    model.WorkMode
	Location    string
	Company     string
	Keyword     string
	PostedSince time.Time
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
}

// Normalized returns f with defaults applied, or a *ValidationError.
func (f PostingFilter) Normalized() (PostingFilter, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	switch f.SortBy {
	case "", "postedAt", SortByPostedAt:
		f.SortBy = SortByPostedAt
	case "lastSyncedAt", SortByLastSyncedAt:
		f.SortBy = SortByLastSyncedAt
	default:
		return f, &ValidationError{Msg: fmt.Sprintf("sortBy must be postedAt or lastSyncedAt, got %q", f.SortBy)}
	}
	switch strings.ToLower(f.SortOrder) {
	case "", "desc":
		f.SortOrder = "desc"
	case "asc":
		f.SortOrder = "asc"
	default:
		return f, &ValidationError{Msg: fmt.Sprintf("sortOrder must be asc or desc, got %q", f.SortOrder)}
	}
	f.Location = strings.TrimSpace(f.Location)
	f.Company = strings.TrimSpace(f.Company)
	f.Keyword = strings.TrimSpace(f.Keyword)
	return f, nil
}

// Offset is the number of rows skipped for the current page.
func (f PostingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// buildPostingWhere renders the WHERE clause and its arguments. Callers pass a
// filter that went through Normalized.
func buildPostingWhere(f PostingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Active != nil {
		conds = append(conds, "is_active = "+arg(*f.Active))
	}
	if f.Source != "" {
		conds = append(conds, "source = "+arg(string(f.Source)))
	}
	if f.JobType != "" {
		conds = append(conds, "job_type = "+arg(string(f.JobType)))
	}
	if f.WorkMode != "" {
		conds = append(conds, "work_mode = "+arg(string(f.WorkMode)))
	}
	if f.Location != "" {
		conds = append(conds, "location ILIKE "+arg(likePattern(f.Location)))
	}
	if f.Company != "" {
		conds = append(conds, "company_name ILIKE "+arg(likePattern(f.Company)))
	}
	if f.Keyword != "" {
		p := arg(likePattern(f.Keyword))
		k := arg(strings.ToLower(f.Keyword))
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE %[1]s OR company_name ILIKE %[1]s OR description ILIKE %[1]s OR %[2]s = ANY(skills))", p, k))
	}
	if !f.PostedSince.IsZero() {
		conds = append(conds, "posted_at >= "+arg(f.PostedSince))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// likePattern builds a contains-pattern with LIKE metacharacters escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// matches is the in-memory equivalent of buildPostingWhere.
func (f PostingFilter) matches(p *model.Posting) bool {
	if f.Active != nil && p.IsActive != *f.Active {
		return false
	}
	if f.Source != "" && p.Source != f.Source {
		return false
	}
	if f.JobType != "" && p.JobType != f.JobType {
		return false
	}
	if f.WorkMode != "" && p.WorkMode != f.WorkMode {
		return false
	}
	if f.Location != "" && !containsFold(p.Location, f.Location) {
		return false
	}
	if f.Company != "" && !containsFold(p.CompanyName, f.Company) {
		return false
	}
	if f.Keyword != "" {
		hit := containsFold(p.Title, f.Keyword) || containsFold(p.CompanyName, f.Keyword) ||
			containsFold(p.Description, f.Keyword)
		for _, s := range p.Skills {
			if s == strings.ToLower(f.Keyword) {
				hit = true
			}
		}
		if !hit {
			return false
		}
	}
	if !f.PostedSince.IsZero() && p.PostedAt.Before(f.PostedSince) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
