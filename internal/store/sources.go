package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/aggregator-service/internal/model"
)

const sourceColumns = `name, display_name, is_enabled, connection_config, last_run_at,
	last_run_status::text, last_run_error, total_fetched, last_run_fetch_count,
	enabled_by, enabled_at, created_at, updated_at`

// SourceRegistry persists source configuration in the job_sources table.
type SourceRegistry struct {
	pool *pgxpool.Pool
}

// NewSourceRegistry returns a SourceRegistry backed by pool.
func NewSourceRegistry(pool *pgxpool.Pool) *SourceRegistry {
	return &SourceRegistry{pool: pool}
}

// ListEnabled returns the enabled sources ordered by name.
func (r *SourceRegistry) ListEnabled(ctx context.Context) ([]model.SourceRecord, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM job_sources WHERE is_enabled ORDER BY name`)
}

// List returns every source ordered by name.
func (r *SourceRegistry) List(ctx context.Context) ([]model.SourceRecord, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM job_sources ORDER BY name`)
}

func (r *SourceRegistry) list(ctx context.Context, sql string) ([]model.SourceRecord, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	sources := make([]model.SourceRecord, 0)
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("list sources scan: %w", err)
		}
		sources = append(sources, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources rows: %w", err)
	}
	return sources, nil
}

// Get returns one source by name.
func (r *SourceRegistry) Get(ctx context.Context, name model.SourceName) (*model.SourceRecord, error) {
	rec, err := scanSource(r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM job_sources WHERE name = $1`, string(name)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", name, err)
	}
	return rec, nil
}

// RecordRunOutcome writes the run bookkeeping in a single statement; the
// cumulative counter is incremented in place.
func (r *SourceRegistry) RecordRunOutcome(ctx context.Context, o model.RunOutcome) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE job_sources SET
		   last_run_at          = $2,
		   last_run_status      = $3::run_status,
		   last_run_error       = NULLIF($4, ''),
		   last_run_fetch_count = $5,
		   total_fetched        = total_fetched + $6,
		   updated_at           = NOW()
		 WHERE name = $1`,
		string(o.Name), o.At, string(o.Status), o.Error, o.FetchCount, int64(o.NewCount),
	)
	if err != nil {
		return &PersistenceError{Op: "record run outcome", Key: string(o.Name), Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// Toggle enables or disables a source and appends the audit row in the same
// transaction.
func (r *SourceRegistry) Toggle(ctx context.Context, name model.SourceName, enabled bool, actorID string) (*model.SourceRecord, error) {
	if actorID == "" {
		return nil, &ValidationError{Msg: "actor id is required"}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("toggle begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := scanSource(tx.QueryRow(ctx,
		`UPDATE job_sources
		 SET is_enabled = $2, enabled_by = $3, enabled_at = NOW(), updated_at = NOW()
		 WHERE name = $1
		 RETURNING `+sourceColumns,
		string(name), enabled, actorID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "toggle source", Key: string(name), Err: err}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO source_audit_log (source, action, actor_id) VALUES ($1, $2, $3)`,
		string(name), string(auditAction(enabled)), actorID,
	); err != nil {
		return nil, &PersistenceError{Op: "write audit log", Key: string(name), Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &PersistenceError{Op: "toggle commit", Key: string(name), Err: err}
	}
	return rec, nil
}

// Seed inserts missing sources and refreshes the display name and connection
// config of existing ones. Enabled flags and run bookkeeping of existing rows
// are left alone. It returns how many sources were inserted.
func (r *SourceRegistry) Seed(ctx context.Context, seeds []model.SourceSeed) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, s := range seeds {
		cfg := s.ConnectionConfig
		if cfg == nil {
			cfg = model.ConnectionConfig{}
		}
		var isNew bool
		err := tx.QueryRow(ctx,
			`INSERT INTO job_sources (name, display_name, is_enabled, connection_config)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE SET
			   display_name      = EXCLUDED.display_name,
			   connection_config = EXCLUDED.connection_config,
			   updated_at        = NOW()
			 RETURNING (xmax = 0)`,
			string(s.Name), s.DisplayName, s.Enabled, map[string]string(cfg),
		).Scan(&isNew)
		if err != nil {
			return 0, &PersistenceError{Op: "seed source", Key: string(s.Name), Err: err}
		}
		if isNew {
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &PersistenceError{Op: "seed commit", Err: err}
	}
	return inserted, nil
}

// AuditLog returns the most recent toggles of a source, newest first.
func (r *SourceRegistry) AuditLog(ctx context.Context, name model.SourceName, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, source, action, actor_id, created_at FROM source_audit_log
		 WHERE source = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(name), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit log query: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e              model.AuditEntry
			source, action string
		)
		if err := rows.Scan(&e.ID, &source, &action, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit log scan: %w", err)
		}
		e.Source = model.SourceName(source)
		e.Action = model.AuditAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func auditAction(enabled bool) model.AuditAction {
	if enabled {
		return model.AuditSourceEnabled
	}
	return model.AuditSourceDisabled
}

func scanSource(row pgx.Row) (*model.SourceRecord, error) {
	var (
		rec          model.SourceRecord
		name         string
		cfg          map[string]string
		lastStatus   *string
		totalFetched int64
	)
	if err := row.Scan(
		&name, &rec.DisplayName, &rec.IsEnabled, &cfg, &rec.LastRunAt,
		&lastStatus, &rec.LastRunError, &totalFetched, &rec.LastRunFetchCount,
		&rec.EnabledBy, &rec.EnabledAt, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Name = model.SourceName(name)
	rec.ConnectionConfig = model.ConnectionConfig(cfg)
	if rec.ConnectionConfig == nil {
		rec.ConnectionConfig = model.ConnectionConfig{}
	}
	if lastStatus != nil {
		st := model.RunStatus(*lastStatus)
		rec.LastRunStatus = &st
	}
	rec.TotalFetched = totalFetched
	return &rec, nil
}
