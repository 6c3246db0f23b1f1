package handlers

import (
	"net/http"
	"time"

	"github.com/mzobesbulelo/siwakhelwe-paystack-backend/internal/platform/httpx"
)

// HealthHandlers exposes liveness endpoints for the storefront and monitoring.
type HealthHandlers struct {
	startedAt time.Time
}

// NewHealthHandlers constructs the handlers.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{startedAt: time.Now()}
}

// Live responds with a plain liveness string on GET /.
func (h *HealthHandlers) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Siwakhelwe Paystack backend is running."))
}

// Healthz responds with a simple status payload for monitoring.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.startedAt).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
