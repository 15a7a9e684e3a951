package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/roast-pipeline/internal/features"
	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// Stage names used for the stage duration metric
const (
	metricStageAnalyze  = "analyze"
	metricStageGenerate = "generate"
)

// RoastWorkflow sequences one request: validate, analyze, aggregate,
// generate. It holds no per-request state; every Run is independent.
type RoastWorkflow struct {
	analyzer  Analyzer
	generator Generator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRoastWorkflow creates the coordinator. m may be nil.
func NewRoastWorkflow(analyzer Analyzer, generator Generator, m *metrics.Metrics, logger *slog.Logger) *RoastWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoastWorkflow{
		analyzer:  analyzer,
		generator: generator,
		metrics:   m,
		logger:    logger,
	}
}

// Name returns the workflow name
func (w *RoastWorkflow) Name() string {
	return "RoastWorkflow"
}

// Run executes the roast workflow. On failure the returned result still
// carries the state reached and, once minted, the request id.
func (w *RoastWorkflow) Run(ctx context.Context, req RoastRequest) (*WorkflowResult, error) {
	result := &WorkflowResult{State: StageValidating}

	// Step 1: Validate before any network call
	level, err := pipeline.ParseRoastLevel(req.RoastLevel)
	if err != nil {
		return w.fail(result, err)
	}
	if req.ImageBase64 == "" {
		return w.fail(result, fmt.Errorf("%w: image is required", ErrInvalidRequest))
	}

	// Step 2: Analyze
	start := time.Now()
	result.RequestID = pipeline.NewRequestID()
	result.State = StageAnalyzing
	logger := w.logger.With("request_id", result.RequestID)
	logger.Info("starting roast workflow", "roast_level", level)

	analysis, err := w.analyzer.Analyze(ctx, req.ImageBase64, result.RequestID)
	analyzeTime := time.Since(start)
	w.metrics.ObserveStage(metricStageAnalyze, analyzeTime)
	if err != nil {
		return w.fail(result, &StageError{Stage: StageAnalyzing, Err: err})
	}

	elapsed := analysis.ProcessingTime
	if elapsed <= 0 {
		elapsed = analyzeTime
	}
	aggregated, rejects := features.AggregateWithRejects(analysis.Branches, elapsed)
	for branch, reason := range rejects {
		logger.Warn("dropping branch result", "branch", branch, "error", reason)
	}
	logger.Info("analysis complete", "present", aggregated.PresentSlots(), "duration_ms", analyzeTime.Milliseconds())

	// Step 3: Generate
	result.State = StageGenerating
	genStart := time.Now()
	generated, err := w.generator.Generate(ctx, aggregated, level, result.RequestID)
	w.metrics.ObserveStage(metricStageGenerate, time.Since(genStart))
	if err != nil {
		return w.fail(result, &StageError{Stage: StageGenerating, Err: err})
	}

	// Step 4: Finalize
	total := time.Since(start)
	result.State = StageCompleted
	result.Response = &pipeline.RoastResponse{
		RequestID:             result.RequestID,
		Roast:                 generated.RoastText,
		Features:              &aggregated,
		TotalProcessingTimeMs: durationMs(total),
		Status:                pipeline.StatusSuccess,
	}
	w.metrics.RunFinished(pipeline.StatusSuccess)
	logger.Info("roast workflow completed", "total_ms", total.Milliseconds())

	return result, nil
}

func (w *RoastWorkflow) fail(result *WorkflowResult, err error) (*WorkflowResult, error) {
	result.FailedAt = result.State
	result.State = StageFailed
	w.metrics.RunFinished(pipeline.StatusError)

	args := []any{"stage", result.FailedAt, "error", err}
	if result.RequestID != "" {
		args = append(args, "request_id", result.RequestID)
	}
	w.logger.Error("roast workflow failed", args...)
	return result, err
}

// durationMs converts d to fractional milliseconds, never reporting zero
// for a run that took any time at all.
func durationMs(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	if ms <= 0 {
		ms = float64(time.Nanosecond) / float64(time.Millisecond)
	}
	return ms
}
