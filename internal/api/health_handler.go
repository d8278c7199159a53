package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/studypal-api/internal/api/shared"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// HealthHandler reports service health.
type HealthHandler struct {
	store   Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler. A nil store is reported as
// "not_configured" and does not fail the check.
func NewHealthHandler(store Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{store: store, timeout: timeout}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Store: "not_configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
}
