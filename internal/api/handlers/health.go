package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/obsidian/internal/api"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
	ready func() bool
}

// NewHealthHandler creates a HealthHandler. store may be nil for the
// in-memory backend.
func NewHealthHandler(store Pinger, ready func() bool) *HealthHandler {
	return &HealthHandler{store: store, ready: ready}
}

type HealthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	IndexReady bool   `json:"index_ready"`
}

// Health reports 503 only when the store is unreachable; a missing active
// index is reported but does not fail the check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	if h.ready != nil {
		resp.IndexReady = h.ready()
	}

	status := http.StatusOK
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	api.JSON(w, status, resp)
}
