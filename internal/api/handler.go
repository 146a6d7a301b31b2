// Package api implements the HTTP admin and read API of the aggregator service.
//
// Admin routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET  /health                                  → liveness
//	GET  /metrics                                 → Prometheus exposition
//	POST /sync                                    → run one sync pass now (409 if busy)
//	GET  /sync/status                             → scheduler status and last report
//	GET  /sources                                 → all sources
//	GET  /sources/{name}                          → one source
//	POST /sources/{name}/toggle                   → enable/disable a source
//	GET  /sources/{name}/audit                    → toggle history
//	GET  /postings                                → filtered, paginated postings
//	GET  /postings/today                          → active postings posted today
//	GET  /postings/{id}                           → one posting
//	POST /postings/{source}/{externalId}/deactivate → admin deactivation
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/scheduler"
	"jobmate/aggregator-service/internal/store"
)

// ─── Dependencies ─────────────────────────────────────────────────────────────

// Syncer triggers runs and reports scheduler state.
type Syncer interface {
	Trigger(ctx context.Context, trigger string) (*model.RunReport, error)
	Status() scheduler.Status
}

// SourceAdmin is the registry surface used by the admin routes.
type SourceAdmin interface {
	List(ctx context.Context) ([]model.SourceRecord, error)
	Get(ctx context.Context, name model.SourceName) (*model.SourceRecord, error)
	Toggle(ctx context.Context, name model.SourceName, enabled bool, actorID string) (*model.SourceRecord, error)
	AuditLog(ctx context.Context, name model.SourceName, limit int) ([]model.AuditEntry, error)
}

// PostingReader is the posting store surface used by the read routes.
type PostingReader interface {
	Query(ctx context.Context, f store.PostingFilter) ([]model.Posting, int, error)
	Get(ctx context.Context, id int64) (*model.Posting, error)
	Deactivate(ctx context.Context, key model.PostingKey) (*model.Posting, error)
}

// TogglePublisher announces source toggles.
type TogglePublisher interface {
	PublishSourceToggled(ctx context.Context, rec *model.SourceRecord, actorID string) error
}

// ─── Response types ───────────────────────────────────────────────────────────

// Pagination describes the page returned by GET /postings.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// PostingPage is the JSON shape of GET /postings.
type PostingPage struct {
	Data       []model.Posting `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	syncer   Syncer
	sources  SourceAdmin
	postings PostingReader
	events   TogglePublisher
	metrics  http.Handler
	log      logger.Logger
	now      func() time.Time
}

// Options carries the optional dependencies of a Handler.
type Options struct {
	Events  TogglePublisher
	Metrics http.Handler
	Logger  logger.Logger
	Now     func() time.Time
}

// NewHandler returns a configured Handler.
func NewHandler(syncer Syncer, sources SourceAdmin, postings PostingReader, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		syncer:   syncer,
		sources:  sources,
		postings: postings,
		events:   opts.Events,
		metrics:  opts.Metrics,
		log:      log.With(logger.String("component", "api")),
		now:      now,
	}
}

// RegisterRoutes mounts all aggregator routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	mux.HandleFunc("POST /sync", h.runSync)
	mux.HandleFunc("GET /sync/status", h.syncStatus)
	mux.HandleFunc("GET /sources", h.listSources)
	mux.HandleFunc("GET /sources/{name}", h.getSource)
	mux.HandleFunc("POST /sources/{name}/toggle", h.toggleSource)
	mux.HandleFunc("GET /sources/{name}/audit", h.auditLog)
	mux.HandleFunc("GET /postings", h.listPostings)
	mux.HandleFunc("GET /postings/today", h.todaysPostings)
	mux.HandleFunc("GET /postings/{id}", h.getPosting)
	mux.HandleFunc("POST /postings/{source}/{externalId}/deactivate", h.deactivatePosting)
}

// ─── Sync ─────────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{"status": "ok", "service": "aggregator-service"})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	h.log.Info("manual sync requested", logger.String("actor", r.Header.Get("x-user-id")))

	report, err := h.syncer.Trigger(r.Context(), scheduler.TriggerHTTP)
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if errors.Is(err, scheduler.ErrStopped) {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil && report == nil {
		h.log.Error("manual sync failed", logger.Error(err))
		jsonError(w, "sync failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	// A sweep failure still produced a report; SweepError carries it.
	jsonOK(w, report)
}

func (h *Handler) syncStatus(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, h.syncer.Status())
}

// ─── Sources ──────────────────────────────────────────────────────────────────

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.List(r.Context())
	if err != nil {
		h.log.Error("list sources failed", logger.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, sources)
}

func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sources.Get(r.Context(), model.SourceName(r.PathValue("name")))
	if err != nil {
		h.storeError(w, err)
		return
	}
	jsonOK(w, rec)
}

func (h *Handler) toggleSource(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get("x-user-id")
	if actorID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		jsonError(w, "body must contain enabled", http.StatusBadRequest)
		return
	}

	rec, err := h.sources.Toggle(r.Context(), model.SourceName(r.PathValue("name")), *body.Enabled, actorID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	if h.events != nil {
		if err := h.events.PublishSourceToggled(r.Context(), rec, actorID); err != nil {
			h.log.Warn("publish source toggled failed (non-fatal)", logger.Error(err))
		}
	}
	jsonOK(w, rec)
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.sources.AuditLog(r.Context(), model.SourceName(r.PathValue("name")), limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	jsonOK(w, entries)
}

// ─── Postings ─────────────────────────────────────────────────────────────────

func (h *Handler) listPostings(w http.ResponseWriter, r *http.Request) {
	f, err := parsePostingFilter(r, h.now())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err = f.Normalized()
	if err != nil {
		h.storeError(w, err)
		return
	}

	postings, total, err := h.postings.Query(r.Context(), f)
	if err != nil {
		h.storeError(w, err)
		return
	}
	jsonOK(w, PostingPage{
		Data: postings,
		Pagination: Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: (total + f.Limit - 1) / f.Limit,
		},
	})
}

func (h *Handler) todaysPostings(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	active := true
	postings, total, err := h.postings.Query(r.Context(), store.PostingFilter{
		Active:      &active,
		PostedSince: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Limit:       store.MaxPageSize,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"data": postings, "count": total})
}

func (h *Handler) getPosting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "posting id must be a positive integer", http.StatusBadRequest)
		return
	}
	p, err := h.postings.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	jsonOK(w, p)
}

func (h *Handler) deactivatePosting(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get("x-user-id")
	if actorID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}
	key := model.PostingKey{
		Source:     model.SourceName(r.PathValue("source")),
		ExternalID: r.PathValue("externalId"),
	}
	p, err := h.postings.Deactivate(r.Context(), key)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.log.Info("posting deactivated", logger.String("key", key.String()), logger.String("actor", actorID))
	jsonOK(w, p)
}

// parsePostingFilter reads the GET /postings query string. Postings are
// active-only unless active=false or active=all is given.
func parsePostingFilter(r *http.Request, now time.Time) (store.PostingFilter, error) {
	q := r.URL.Query()
	f := store.PostingFilter{
		Source:    model.SourceName(q.Get("source")),
		Location:  q.Get("location"),
		Company:   q.Get("company"),
		Keyword:   firstNonEmpty(q.Get("q"), q.Get("search")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}

	switch v := strings.ToLower(q.Get("active")); v {
	case "", "true":
		active := true
		f.Active = &active
	case "false":
		active := false
		f.Active = &active
	case "all":
	default:
		return f, fmt.Errorf("active must be true, false or all, got %q", v)
	}

	if v := q.Get("jobType"); v != "" {
		jt, ok := model.ParseJobType(v)
		if !ok {
			return f, fmt.Errorf("unknown jobType %q", v)
		}
		f.JobType = jt
	}
	if v := q.Get("workMode"); v != "" {
		wm, ok := model.ParseWorkMode(v)
		if !ok {
			return f, fmt.Errorf("unknown workMode %q", v)
		}
		f.WorkMode = wm
	}
	if v := q.Get("postedInDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return f, fmt.Errorf("postedInDays must be a non-negative integer")
		}
		f.PostedSince = now.AddDate(0, 0, -days)
	}

	var err error
	if f.Page, err = optionalInt(q.Get("page")); err != nil {
		return f, fmt.Errorf("page: %w", err)
	}
	if f.Limit, err = optionalInt(q.Get("limit")); err != nil {
		return f, fmt.Errorf("limit: %w", err)
	}
	return f, nil
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// storeError maps store errors onto HTTP status codes.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	switch {
	case errors.Is(err, store.ErrSourceNotFound), errors.Is(err, store.ErrPostingNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &verr):
		jsonError(w, verr.Msg, http.StatusBadRequest)
	default:
		h.log.Error("store error", logger.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
