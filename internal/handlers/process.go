package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tendant/roast-pipeline/internal/features"
	"github.com/tendant/roast-pipeline/internal/workflows"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// ProcessHandler serves the stage-1 boundary: it runs every analyzer and
// returns the aggregated features
type ProcessHandler struct {
	analyzer workflows.Analyzer
	maxBytes int64
	logger   *slog.Logger
}

// NewProcessHandler creates a stage-1 handler. maxBytes bounds the JSON body.
func NewProcessHandler(analyzer workflows.Analyzer, maxBytes int64, logger *slog.Logger) *ProcessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessHandler{
		analyzer: analyzer,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// HandleProcess handles POST /api/v1/process
func (h *ProcessHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if h.maxBytes > 0 {
		// base64 inflates the image by a third
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*4/3+multipartOverhead)
	}

	var req pipeline.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeWorkflowError(w, fmt.Errorf("%w: request body exceeds limit", workflows.ErrImageTooLarge))
			return
		}
		writeWorkflowError(w, fmt.Errorf("%w: %v", workflows.ErrInvalidRequest, err))
		return
	}
	if req.ImageBase64 == "" {
		writeWorkflowError(w, fmt.Errorf("%w: image_base64 is required", workflows.ErrInvalidRequest))
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get(pipeline.RequestIDHeader)
	}
	if requestID == "" {
		requestID = pipeline.NewRequestID()
	}
	w.Header().Set(pipeline.RequestIDHeader, requestID)

	result, err := h.analyzer.Analyze(r.Context(), req.ImageBase64, requestID)
	if err != nil {
		h.logger.Error("analysis failed", "request_id", requestID, "error", err)
		writeWorkflowError(w, &workflows.StageError{Stage: workflows.StageAnalyzing, Err: err})
		return
	}

	aggregated, rejects := features.AggregateWithRejects(result.Branches, result.ProcessingTime)
	for branch, reason := range rejects {
		h.logger.Warn("dropping branch result", "request_id", requestID, "branch", branch, "error", reason)
	}

	writeJSON(w, http.StatusOK, aggregated)
}
