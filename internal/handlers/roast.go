package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/roast-pipeline/internal/imageprep"
	"github.com/tendant/roast-pipeline/internal/workflows"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// Form fields of POST /api/v1/analyze
const (
	FormFieldImage      = "image"
	FormFieldRoastLevel = "roast_level"
)

// multipartOverhead is allowed on top of the image limit for boundaries and
// the roast_level field
const multipartOverhead = 64 << 10

// Roaster runs the roast workflow for one request
type Roaster interface {
	Run(ctx context.Context, req workflows.RoastRequest) (*workflows.WorkflowResult, error)
}

// RoastHandler serves the client-facing upload endpoint
type RoastHandler struct {
	roaster        Roaster
	preparer       *imageprep.Preparer
	maxBytes       int64
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewRoastHandler creates a roast handler. A non-positive requestTimeout
// leaves the request bounded only by the per-call timeouts.
func NewRoastHandler(roaster Roaster, preparer *imageprep.Preparer, maxBytes int64, requestTimeout time.Duration, logger *slog.Logger) *RoastHandler {
	if maxBytes <= 0 {
		maxBytes = imageprep.DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoastHandler{
		roaster:        roaster,
		preparer:       preparer,
		maxBytes:       maxBytes,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// HandleAnalyze handles POST /api/v1/analyze - multipart image upload plus roast_level
func (h *RoastHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	limit := h.maxBytes + multipartOverhead
	if r.ContentLength > limit {
		writeWorkflowError(w, fmt.Errorf("%w: maximum size is %d bytes", workflows.ErrImageTooLarge, h.maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeWorkflowError(w, fmt.Errorf("%w: maximum size is %d bytes", workflows.ErrImageTooLarge, h.maxBytes))
			return
		}
		writeWorkflowError(w, fmt.Errorf("%w: expected multipart/form-data: %v", workflows.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	// Validate roast_level before touching the image
	level := r.FormValue(FormFieldRoastLevel)
	if level == "" {
		level = string(pipeline.DefaultRoastLevel)
	}
	if _, err := pipeline.ParseRoastLevel(level); err != nil {
		writeWorkflowError(w, err)
		return
	}

	file, _, err := r.FormFile(FormFieldImage)
	if err != nil {
		writeWorkflowError(w, fmt.Errorf("%w: %s file is required", workflows.ErrInvalidRequest, FormFieldImage))
		return
	}
	defer file.Close()

	prepared, err := h.preparer.Prepare(file)
	if err != nil {
		h.logger.Warn("rejected upload", "error", err)
		writeWorkflowError(w, err)
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	result, err := h.roaster.Run(ctx, workflows.RoastRequest{
		ImageBase64: prepared.Base64,
		RoastLevel:  level,
	})
	if result != nil && result.RequestID != "" {
		w.Header().Set(pipeline.RequestIDHeader, result.RequestID)
	}
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Response)
}
