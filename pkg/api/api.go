// Package api exposes the operator-facing control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/runner"
	"github.com/scoutline-dev/scoutline/pkg/store"
)

// Engine is the run-control surface the API fronts.
type Engine interface {
	LaunchRun(ctx context.Context, cfg prospect.RunConfig) (string, error)
	RunStatus(ctx context.Context, runID string) (*runner.Progress, error)
	CancelRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]*prospect.Run, error)
	RunAttempts(ctx context.Context, runID string) ([]*prospect.Attempt, error)
	RunProspects(ctx context.Context, runID string) ([]*prospect.Prospect, error)
}

// Handler serves the control API.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// New creates an API handler.
func New(engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", h.launchRun)
		r.Get("/", h.listRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", h.runStatus)
			r.Post("/cancel", h.cancelRun)
			r.Get("/attempts", h.runAttempts)
			r.Get("/prospects", h.runProspects)
		})
	})
	return r
}

type launchResponse struct {
	RunID string `json:"run_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) launchRun(w http.ResponseWriter, r *http.Request) {
	var cfg prospect.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	runID, err := h.engine.LaunchRun(r.Context(), cfg)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, launchResponse{RunID: runID})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.ListRuns(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*prospect.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) runStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := h.engine.RunStatus(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := h.engine.CancelRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
}

func (h *Handler) runAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.engine.RunAttempts(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if attempts == nil {
		attempts = []*prospect.Attempt{}
	}
	h.writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) runProspects(w http.ResponseWriter, r *http.Request) {
	prospects, err := h.engine.RunProspects(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if prospects == nil {
		prospects = []*prospect.Prospect{}
	}
	h.writeJSON(w, http.StatusOK, prospects)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
