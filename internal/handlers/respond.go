package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tendant/roast-pipeline/internal/workflows"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

const internalErrorDetail = "Internal server error"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code pipeline.ErrorCode, detail string) {
	writeJSON(w, status, pipeline.ErrorResponse{
		Detail:    detail,
		Status:    pipeline.StatusError,
		ErrorCode: code,
	})
}

// writeWorkflowError maps err onto the error envelope. Internal errors never
// expose their text.
func writeWorkflowError(w http.ResponseWriter, err error) {
	code := workflows.Classify(err)
	switch code {
	case pipeline.CodeValidation:
		status := http.StatusBadRequest
		if errors.Is(err, workflows.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, code, err.Error())
	case pipeline.CodeAnalysisFailed, pipeline.CodeGenerationFailed:
		writeError(w, http.StatusBadGateway, code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, pipeline.CodeInternal, internalErrorDetail)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, pipeline.CodeValidation, "Method not allowed")
}
