package api

import (
	"context"
	"net/http"

	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves readiness and Prometheus metrics.
type HealthHandler struct {
	ready   func(ctx context.Context) error
	logger  logger.Logger
	metrics http.Handler
}

// NewHealthHandler creates a new health handler. A nil ready check always
// passes.
func NewHealthHandler(ready func(ctx context.Context) error, l logger.Logger) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		logger:  l,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn(r.Context(), "readiness check failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMetrics serves the custom metrics registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
