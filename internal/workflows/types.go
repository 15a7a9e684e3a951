package workflows

import (
	"context"

	"github.com/tendant/roast-pipeline/internal/services"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// Stage is a state of the roast workflow
type Stage string

// Stage constants. Failed is reachable from Validating, Analyzing and Generating.
const (
	StageValidating Stage = "validating"
	StageAnalyzing  Stage = "analyzing"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// RoastRequest is the input to the roast workflow
type RoastRequest struct {
	ImageBase64 string
	RoastLevel  string
}

// WorkflowResult contains the result of workflow execution
type WorkflowResult struct {
	RequestID string
	State     Stage
	// FailedAt is the stage that was running when the workflow failed
	FailedAt Stage
	Response *pipeline.RoastResponse
}

// Analyzer runs stage 1: the fan-out over every analysis branch.
// A returned error means the stage itself could not be completed.
type Analyzer interface {
	Analyze(ctx context.Context, imageBase64, requestID string) (*services.AnalysisResult, error)
}

// Generator runs stage 2
type Generator interface {
	Generate(ctx context.Context, features pipeline.AggregatedFeatures, level pipeline.RoastLevel, requestID string) (*pipeline.GenerateResponse, error)
}
