package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/aggregator-service/internal/model"
)

const postingColumns = `id, source, external_id, title, company_name, description, requirements,
	location, job_type, work_mode, skills, apply_url, posted_at, is_active, last_synced_at,
	raw_payload, created_at, updated_at`

// PostingStore persists postings in the job_postings table.
type PostingStore struct {
	pool *pgxpool.Pool
}

// NewPostingStore returns a PostingStore backed by pool.
func NewPostingStore(pool *pgxpool.Pool) *PostingStore {
	return &PostingStore{pool: pool}
}

// FindByKey returns the posting stored under key, or ErrPostingNotFound.
func (s *PostingStore) FindByKey(ctx context.Context, key model.PostingKey) (*model.Posting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM job_postings WHERE source = $1 AND external_id = $2`,
		string(key.Source), key.ExternalID,
	)
	p, err := scanPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPostingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("findByKey %s: %w", key, err)
	}
	return p, nil
}

// Upsert inserts the posting or replaces every upstream-derived field of the
// existing row in a single statement. The row is (re)activated, created_at is
// preserved, and last_synced_at is forced strictly forward even if the caller's
// clock is behind the stored value.
func (s *PostingStore) Upsert(ctx context.Context, p model.Posting) (UpsertResult, error) {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	var payload any
	if len(p.RawPayload) > 0 {
		payload = p.RawPayload
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO job_postings (
		   source, external_id, title, company_name, description, requirements,
		   location, job_type, work_mode, skills, apply_url, posted_at,
		   is_active, last_synced_at, raw_payload
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13, $14)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		   title          = EXCLUDED.title,
		   company_name   = EXCLUDED.company_name,
		   description    = EXCLUDED.description,
		   requirements   = EXCLUDED.requirements,
		   location       = EXCLUDED.location,
		   job_type       = EXCLUDED.job_type,
		   work_mode      = EXCLUDED.work_mode,
		   skills         = EXCLUDED.skills,
		   apply_url      = EXCLUDED.apply_url,
		   posted_at      = EXCLUDED.posted_at,
		   is_active      = TRUE,
		   last_synced_at = GREATEST(EXCLUDED.last_synced_at, job_postings.last_synced_at + interval '1 microsecond'),
		   raw_payload    = EXCLUDED.raw_payload,
		   updated_at     = NOW()
		 RETURNING `+postingColumns+`, (xmax = 0) AS inserted`,
		string(p.Source), p.ExternalID, p.Title, p.CompanyName, p.Description, p.Requirements,
		p.Location, string(p.JobType), string(p.WorkMode), skills, p.ApplyURL, p.PostedAt,
		p.LastSyncedAt, payload,
	)

	var inserted bool
	stored, err := scanPosting(row, &inserted)
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "upsert posting", Key: p.Key().String(), Err: err}
	}
	return UpsertResult{Inserted: inserted, Posting: *stored}, nil
}

// MarkInactiveOlderThan deactivates every active posting not synced since
// cutoff and returns how many rows changed.
func (s *PostingStore) MarkInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET is_active = FALSE, updated_at = NOW()
		 WHERE is_active AND last_synced_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, &PersistenceError{Op: "mark inactive", Err: err}
	}
	return tag.RowsAffected(), nil
}

// CountActive returns the number of active postings.
func (s *PostingStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_postings WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("countActive: %w", err)
	}
	return n, nil
}

// Query returns one page of postings matching f and the total match count.
func (s *PostingStore) Query(ctx context.Context, f PostingFilter) ([]model.Posting, int, error) {
	f, err := f.Normalized()
	if err != nil {
		return nil, 0, err
	}
	where, args := buildPostingWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_postings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("query count: %w", err)
	}

	// SortBy and SortOrder are whitelisted by Normalized.
	sql := fmt.Sprintf(`SELECT %s FROM job_postings%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d`,
		postingColumns, where, f.SortBy, f.SortOrder, f.SortOrder, f.Limit, f.Offset())
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	postings := make([]model.Posting, 0, f.Limit)
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("query postings scan: %w", err)
		}
		postings = append(postings, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query postings rows: %w", err)
	}
	return postings, total, nil
}

// Get returns a posting by its store id.
func (s *PostingStore) Get(ctx context.Context, id int64) (*model.Posting, error) {
	p, err := scanPosting(s.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPostingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting %d: %w", id, err)
	}
	return p, nil
}

// Deactivate marks one posting inactive on administrative request. The next
// run that observes it upstream reactivates it.
func (s *PostingStore) Deactivate(ctx context.Context, key model.PostingKey) (*model.Posting, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE job_postings SET is_active = FALSE, updated_at = NOW()
		 WHERE source = $1 AND external_id = $2
		 RETURNING `+postingColumns,
		string(key.Source), key.ExternalID,
	)
	p, err := scanPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPostingNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "deactivate posting", Key: key.String(), Err: err}
	}
	return p, nil
}

// scanPosting reads postingColumns from row, followed by any extra destinations.
func scanPosting(row pgx.Row, extra ...any) (*model.Posting, error) {
	var (
		p                         model.Posting
		source, jobType, workMode string
		requirements              *string
	)
	dest := []any{
		&p.ID, &source, &p.ExternalID, &p.Title, &p.CompanyName, &p.Description, &requirements,
		&p.Location, &jobType, &workMode, &p.Skills, &p.ApplyURL, &p.PostedAt, &p.IsActive,
		&p.LastSyncedAt, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Source = model.SourceName(source)
	p.JobType = model.JobType(jobType)
	p.WorkMode = model.WorkMode(workMode)
	if requirements != nil {
		p.Requirements = *requirements
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	return &p, nil
}
