// Package briefingapi exposes briefing runs over HTTP.
package briefingapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/hermes/internal/briefing"
)

// BriefingService defines the business operations briefingapi needs.
type BriefingService interface {
	StartRun(ctx context.Context, runDate string) (*briefing.StartResult, error)
	GetRun(ctx context.Context, id string) (*briefing.Run, bool, error)
	GetBriefing(ctx context.Context, runDate string) (*briefing.Briefing, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    BriefingService
	now    func() time.Time
}

// New creates a new API handler.
func New(logger log.Logger, svc BriefingService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("briefing service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		now:    time.Now,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", a.handleStartRun)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/briefings/{date}", a.handleGetBriefing)
	})
}

type startRunRequest struct {
	Date string `json:"date"`
}

func (a *API) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	runDate := req.Date
	if runDate == "" {
		runDate = a.now().UTC().Format(briefing.DateFormat)
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("hermes.run.date", runDate))

	result, err := a.svc.StartRun(r.Context(), runDate)
	if err != nil {
		var parseErr *time.ParseError
		if errors.As(err, &parseErr) {
			http.Error(w, `{"error":"invalid date, want YYYY-MM-DD"}`, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), err, "failed to start run", "run_date", runDate)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Skipped {
		span.SetAttributes(attribute.Bool("hermes.run.skipped", true))
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"skipped": true,
			"reason":  result.Reason,
		})
		return
	}

	span.SetAttributes(attribute.String("hermes.run.id", result.ID))
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":       result.ID,
		"run_date": runDate,
	})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("hermes.run.id", id))

	run, ok, err := a.svc.GetRun(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("hermes.run.status", string(run.Status)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(run)
}

func (a *API) handleGetBriefing(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(briefing.DateFormat, date); err != nil {
		http.Error(w, `{"error":"invalid date, want YYYY-MM-DD"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("hermes.run.date", date))

	b, ok, err := a.svc.GetBriefing(r.Context(), date)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get briefing", "date", date)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(b)
}
