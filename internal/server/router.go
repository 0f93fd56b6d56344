package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/cache"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRunsLimit = 200

// BusStatus reports the message bus connection state.
type BusStatus interface {
	Connected() bool
}

// RunLister lists recent command runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]models.Run, error)
}

// CacheSnapshotter summarises the playlist cache.
type CacheSnapshotter interface {
	Snapshot() []cache.Summary
}

// StatusOpts contains the sources the status endpoints read from. Runs may be nil when no
// history database is configured.
type StatusOpts struct {
	Bus    BusStatus
	Runs   RunLister
	Cache  CacheSnapshotter
	Logger *log.Logger
}

type statusHandler struct {
	StatusOpts
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// NewRouter builds the status server router.
func NewRouter(opts StatusOpts) http.Handler {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	h := &statusHandler{opts}

	r := chi.NewRouter()
	r.Use(RequestLogger(shared.WithLogger(opts.Logger, "component", "http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/runs", h.runs)
	r.Get("/cache", h.cache)
	return r
}

func (h *statusHandler) health(w http.ResponseWriter, r *http.Request) {
	connected := h.Bus != nil && h.Bus.Connected()
	resp := HealthResponse{Status: "ok", Connected: connected}
	status := http.StatusOK
	if !connected {
		resp.Status = "disconnected"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *statusHandler) runs(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		http.Error(w, "run history is not configured", http.StatusNotFound)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.Runs.Recent(r.Context(), limit)
	if err != nil {
		h.Logger.Error("failed to list runs", "error", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

func (h *statusHandler) cache(w http.ResponseWriter, r *http.Request) {
	summaries := []cache.Summary{}
	if h.Cache != nil {
		summaries = h.Cache.Snapshot()
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

func (h *statusHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to write response", "error", err)
	}
}
