package handlers

import (
	"context"
	"net/http"

	"github.com/tendant/roast-pipeline/internal/health"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// HealthChecker produces a health verdict over downstream services
type HealthChecker interface {
	Check(ctx context.Context) health.Verdict
}

// HealthHandler serves GET /health
type HealthHandler struct {
	checker HealthChecker
	service string
	version string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(checker HealthChecker, service, version string) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		service: service,
		version: version,
	}
}

// HandleHealth reports liveness of this process and its downstreams.
// A degraded tier still answers 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	verdict := h.checker.Check(r.Context())
	writeJSON(w, http.StatusOK, pipeline.HealthResponse{
		Status:   verdict.Status(),
		Service:  h.service,
		Version:  h.version,
		Services: verdict,
	})
}
