package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RoastLevel selects the intensity of the generated roast
type RoastLevel string

// RoastLevel constants
const (
	RoastMild   RoastLevel = "mild"
	RoastMedium RoastLevel = "medium"
	RoastSavage RoastLevel = "savage"

	// DefaultRoastLevel is used when a client omits roast_level
	DefaultRoastLevel = RoastMedium
)

// ErrInvalidRoastLevel is returned for anything other than mild, medium or savage
var ErrInvalidRoastLevel = errors.New("invalid roast_level: must be 'mild', 'medium', or 'savage'")

// Valid reports whether l is one of the three recognized levels
func (l RoastLevel) Valid() bool {
	switch l {
	case RoastMild, RoastMedium, RoastSavage:
		return true
	}
	return false
}

// ParseRoastLevel validates s without coercing it (no trimming, no case folding)
func ParseRoastLevel(s string) (RoastLevel, error) {
	level := RoastLevel(s)
	if !level.Valid() {
		return "", fmt.Errorf("%w (got %q)", ErrInvalidRoastLevel, s)
	}
	return level, nil
}

// NewRequestID mints the correlation token for one inbound request
func NewRequestID() string {
	return uuid.NewString()
}

// RequestIDHeader carries the request identity on every outbound call
const RequestIDHeader = "X-Request-ID"

// Branch names (match the stage-1 response fields)
const (
	BranchFaceAnalysis      = "face_analysis"
	BranchBodyAnalysis      = "body_analysis"
	BranchDemographics      = "demographics"
	BranchObjectScene       = "object_scene"
	BranchQualityAesthetics = "quality_aesthetics"
	BranchSceneDescription  = "vlm_scene_analysis"
)

// DefaultBranches lists the analyzers every deployment runs
func DefaultBranches() []string {
	return []string{
		BranchFaceAnalysis,
		BranchBodyAnalysis,
		BranchDemographics,
		BranchObjectScene,
		BranchQualityAesthetics,
	}
}

// Status values carried by responses
const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusError    = "error"
	StatusHealthy  = "healthy"
)

// ErrorCode is the machine-readable category of an error response
type ErrorCode string

// ErrorCode constants
const (
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeAnalysisFailed   ErrorCode = "ANALYSIS_FAILED"
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// AnalyzeRequest is sent to the stage-1 service and to every analyzer branch
type AnalyzeRequest struct {
	ImageBase64 string `json:"image_base64"`
	RequestID   string `json:"request_id"`
}

// GenerateRequest is sent to the generation service
type GenerateRequest struct {
	Features   AggregatedFeatures `json:"features"`
	RoastLevel RoastLevel         `json:"roast_level"`
}

// GenerateResponse is returned by the generation service
type GenerateResponse struct {
	RoastText        string   `json:"roast_text"`
	Confidence       *float64 `json:"confidence,omitempty"`
	GenerationTimeMs *float64 `json:"generation_time_ms,omitempty"`
}

// RoastResponse is the terminal artifact returned to the client
type RoastResponse struct {
	RequestID             string              `json:"request_id"`
	Roast                 string              `json:"roast"`
	Features              *AggregatedFeatures `json:"features"`
	TotalProcessingTimeMs float64             `json:"total_processing_time_ms"`
	Status                string              `json:"status"`
}

// ErrorResponse is the envelope for every failed request
type ErrorResponse struct {
	Detail    string    `json:"detail"`
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
}

// HealthResponse is returned by GET /health on every tier
type HealthResponse struct {
	Status   string          `json:"status"`
	Service  string          `json:"service"`
	Version  string          `json:"version"`
	Services map[string]bool `json:"services,omitempty"`
}
