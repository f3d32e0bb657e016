package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/importer"
	"github.com/kraigferns/feedback-intel/internal/insights"
	"github.com/kraigferns/feedback-intel/internal/intake"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/monitoring"
	"github.com/kraigferns/feedback-intel/internal/store"
)

const (
	maxBodyBytes         = 1 << 20
	defaultLookbackHours = 24
)

// importRunner triggers one import pass.
type importRunner interface {
	Run(ctx context.Context) (map[string]int, error)
}

// submitter accepts one feedback submission.
type submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (*intake.Result, error)
}

// api serves the HTTP endpoints.
type api struct {
	store    store.Store
	intake   submitter
	importer importRunner
	metrics  *monitoring.Collector
	now      func() time.Time
}

// buildRouter mounts every endpoint with CORS for allowedOrigins.
func buildRouter(st store.Store, sub submitter, imp importRunner, metrics *monitoring.Collector, allowedOrigins []string) http.Handler {
	a := &api{store: st, intake: sub, importer: imp, metrics: metrics, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/feedback", a.listFeedback)
		r.Post("/feedback", a.createFeedback)
		r.Get("/feedback/{id}", a.getFeedback)
		r.Get("/runs/{id}", a.getRun)
		r.Post("/import", a.runImport)
		r.Get("/insights", a.insights)
		r.Get("/metrics", a.runMetrics)
		r.Post("/clear", a.clear)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and hides its detail from the caller.
func internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("http: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		zap.L().Warn("http: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) listFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FeedbackFilter{
		Source:    q.Get("source"),
		Urgency:   q.Get("urgency"),
		Sentiment: q.Get("sentiment"),
		Tier:      q.Get("customer_tier"),
		Theme:     q.Get("theme"),
	}
	items, err := a.store.ListFeedback(r.Context(), filter)
	if err != nil {
		internalError(w, "list feedback", err)
		return
	}
	if items == nil {
		items = []model.FeedbackItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *api) createFeedback(w http.ResponseWriter, r *http.Request) {
	var sub intake.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := a.intake.Submit(r.Context(), sub)
	var dup *intake.DuplicateError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate content", "id": dup.ID})
	case errors.Is(err, intake.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, "submit feedback", err)
	}
}

func (a *api) getFeedback(w http.ResponseWriter, r *http.Request) {
	item, err := a.store.GetFeedback(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "feedback not found")
	case err != nil:
		internalError(w, "get feedback", err)
	default:
		writeJSON(w, http.StatusOK, item)
	}
}

type runResponse struct {
	*model.Run
	Steps []model.StepRecord `json:"steps"`
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.store.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		internalError(w, "get run", err)
		return
	}

	steps, err := a.store.LoadSteps(r.Context(), id)
	if err != nil {
		internalError(w, "load steps", err)
		return
	}
	if steps == nil {
		steps = []model.StepRecord{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Steps: steps})
}

func (a *api) runImport(w http.ResponseWriter, r *http.Request) {
	counts, err := a.importer.Run(r.Context())
	switch {
	case errors.Is(err, importer.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		internalError(w, "import", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"imported": counts})
	}
}

func (a *api) insights(w http.ResponseWriter, r *http.Request) {
	report, err := insights.Compute(r.Context(), a.store, a.now())
	if err != nil {
		internalError(w, "insights", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) runMetrics(w http.ResponseWriter, r *http.Request) {
	hours := defaultLookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := a.metrics.Collect(r.Context(), hours)
	if err != nil {
		internalError(w, "collect metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) clear(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.ClearFeedback(r.Context())
	if err != nil {
		internalError(w, "clear feedback", err)
		return
	}
	zap.L().Warn("http: feedback cleared", zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
