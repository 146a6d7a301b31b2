package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/scraper"
	"jobmate/aggregator-service/internal/store"
)

const (
	DefaultConcurrency = 4
	DefaultStaleAfter  = 30 * 24 * time.Hour
)

// PostingStore is the part of the posting store a run writes to.
type PostingStore interface {
	Upsert(ctx context.Context, p model.Posting) (store.UpsertResult, error)
	MarkInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}

// SourceRegistry is the part of the source registry a run reads and writes.
type SourceRegistry interface {
	ListEnabled(ctx context.Context) ([]model.SourceRecord, error)
	RecordRunOutcome(ctx context.Context, o model.RunOutcome) error
}

// AdapterLookup resolves the adapter for a source name.
type AdapterLookup interface {
	Lookup(name model.SourceName) (scraper.Adapter, bool)
}

// Publisher is notified once per completed run.
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, report *model.RunReport) error
}

// Observer records run metrics.
type Observer interface {
	ObserveRun(report *model.RunReport, activePostings int64)
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	Concurrency int
	StaleAfter  time.Duration
	Now         func() time.Time
	// LookupEnv resolves ${NAME} references in connection configs.
	LookupEnv func(string) (string, bool)
	Publisher Publisher
	Observer  Observer
	Logger    logger.Logger
}

// Orchestrator runs sync passes. It holds no per-run state, so a single value
// may serve every trigger; mutual exclusion between runs is the caller's job.
type Orchestrator struct {
	postings PostingStore
	sources  SourceRegistry
	adapters AdapterLookup
	opts     Options
	log      logger.Logger
}

// New builds an Orchestrator.
func New(postings PostingStore, sources SourceRegistry, adapters AdapterLookup, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		postings: postings,
		sources:  sources,
		adapters: adapters,
		opts:     opts,
		log:      log.With(logger.String("component", "aggregator")),
	}
}

func (o *Orchestrator) now() time.Time { return o.opts.Now().UTC() }

// Run performs one pass: every enabled source is fetched, normalized and
// upserted independently, then postings not seen within StaleAfter are
// deactivated. Only a failure to list the enabled sources fails the run as a
// whole; in that case no source is touched and no sweep happens.
//
// A sweep failure is reported in RunReport.SweepError and also returned, with
// the report, so callers can surface it.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}
	log := o.log.With(logger.String("run_id", report.RunID))

	enabled, err := o.sources.ListEnabled(ctx)
	if err != nil {
		log.Error("list enabled sources failed", logger.Error(err))
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	log.Info("sync started", logger.Int("sources", len(enabled)))

	// Each goroutine owns one slot; no locking needed.
	report.Sources = make([]model.SourceOutcome, len(enabled))
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, rec := range enabled {
		g.Go(func() error {
			report.Sources[i] = o.syncSource(ctx, log, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range report.Sources {
		report.TotalNew += s.NewCount
	}

	var sweepErr error
	cutoff := o.now().Add(-o.opts.StaleAfter)
	report.Deactivated, sweepErr = o.postings.MarkInactiveOlderThan(ctx, cutoff)
	if sweepErr != nil {
		report.SweepError = sweepErr.Error()
		log.Error("staleness sweep failed", logger.Error(sweepErr))
	} else if report.Deactivated > 0 {
		log.Info("stale postings deactivated", logger.Int64("count", report.Deactivated), logger.Time("cutoff", cutoff))
	}

	report.FinishedAt = o.now()
	o.afterRun(ctx, log, report)

	if sweepErr != nil {
		return report, fmt.Errorf("staleness sweep: %w", sweepErr)
	}
	return report, nil
}

// afterRun publishes the completion event and records metrics (non-fatal).
func (o *Orchestrator) afterRun(ctx context.Context, log logger.Logger, report *model.RunReport) {
	log.Info("sync finished",
		logger.Int("total_new", report.TotalNew),
		logger.Int64("deactivated", report.Deactivated),
		logger.Duration("duration", report.Duration()),
	)

	if o.opts.Publisher != nil {
		if err := o.opts.Publisher.PublishSyncCompleted(ctx, report); err != nil {
			log.Warn("publish sync completed failed (non-fatal)", logger.Error(err))
		}
	}
	if o.opts.Observer != nil {
		active, err := o.postings.CountActive(ctx)
		if err != nil {
			log.Warn("count active postings failed (non-fatal)", logger.Error(err))
			active = -1
		}
		o.opts.Observer.ObserveRun(report, active)
	}
}

// syncSource processes one source and writes its outcome back to the registry.
func (o *Orchestrator) syncSource(ctx context.Context, log logger.Logger, rec model.SourceRecord) model.SourceOutcome {
	log = log.With(logger.String("source", string(rec.Name)))
	started := o.now()

	out := o.processSource(ctx, log, rec)

	err := o.sources.RecordRunOutcome(ctx, model.RunOutcome{
		Name:       rec.Name,
		Status:     out.Status,
		Error:      out.Error,
		FetchCount: out.FetchCount,
		NewCount:   out.NewCount,
		At:         o.now(),
	})
	if err != nil {
		out.RecordError = err.Error()
		log.Error("record run outcome failed", logger.Error(err))
	}

	fields := []logger.Field{
		logger.String("status", string(out.Status)),
		logger.Int("fetched", out.FetchCount),
		logger.Int("new", out.NewCount),
		logger.Int("updated", out.UpdatedCount),
		logger.Int("failed", out.FailedCount),
		logger.Int("excluded", out.ExcludedCount),
		logger.Duration("duration", o.now().Sub(started)),
	}
	if out.Status == model.RunStatusFailed {
		log.Warn("source sync failed", append(fields, logger.String("error", out.Error))...)
	} else {
		log.Info("source synced", fields...)
	}
	return out
}

// processSource runs the fetch → normalize → upsert pipeline for one source.
// A panic anywhere in it is turned into a failed outcome.
func (o *Orchestrator) processSource(ctx context.Context, log logger.Logger, rec model.SourceRecord) (out model.SourceOutcome) {
	run := newSourceRun()
	out.Name = rec.Name

	defer func() {
		if p := recover(); p != nil {
			run.fail(fmt.Errorf("panic: %v", p))
		}
		out.Status = run.phase.RunStatus()
		if run.err != nil {
			out.Error = run.err.Error()
		}
	}()

	// ── Fetch ──
	run.advance(PhaseFetching)
	adapter, ok := o.adapters.Lookup(rec.Name)
	if !ok {
		run.fail(&scraper.SourceConfigError{Source: rec.Name, Msg: "no adapter registered"})
		return out
	}
	params := rec.ConnectionConfig.Resolve(o.opts.LookupEnv)
	raw, err := adapter.Fetch(ctx, params)
	var truncated *scraper.TruncatedError
	if errors.As(err, &truncated) {
		log.Warn("upstream listing truncated, unseen postings will age out", logger.Int("limit", truncated.Limit))
	} else if err != nil {
		run.fail(err)
		return out
	}
	out.FetchCount = len(raw)

	// ── Normalize ──
	if !run.advance(PhaseNormalizing) {
		return out
	}
	exclude := scraper.ExcludeTerms(params)
	postings := make([]model.Posting, 0, len(raw))
	var firstNormErr error
	for _, r := range raw {
		p, err := adapter.Normalize(r)
		if err != nil {
			out.FailedCount++
			if firstNormErr == nil {
				firstNormErr = err
			}
			log.Debug("record skipped", logger.Error(err))
			continue
		}
		if scraper.Excluded(p, exclude) {
			out.ExcludedCount++
			continue
		}
		postings = append(postings, p)
	}

	// ── Upsert ──
	if !run.advance(PhaseUpserting) {
		return out
	}
	for _, p := range postings {
		p.LastSyncedAt = o.now()
		res, err := o.postings.Upsert(ctx, p)
		if err != nil {
			var perr *store.PersistenceError
			if !errors.As(err, &perr) {
				err = &store.PersistenceError{Op: "upsert posting", Key: p.Key().String(), Err: err}
			}
			run.fail(err)
			return out
		}
		if res.Inserted {
			out.NewCount++
		} else {
			out.UpdatedCount++
		}
	}

	var partial []error
	if out.FailedCount > 0 {
		partial = append(partial, fmt.Errorf("%d of %d records could not be normalized; first: %w", out.FailedCount, out.FetchCount, firstNormErr))
	}
	if truncated != nil {
		partial = append(partial, truncated)
	}
	if len(partial) > 0 {
		run.advance(PhasePartial)
		run.err = errors.Join(partial...)
		return out
	}
	run.advance(PhaseSuccess)
	return out
}
