package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/roast-pipeline/internal/fanout"
	"github.com/tendant/roast-pipeline/internal/health"
	"github.com/tendant/roast-pipeline/internal/services"
)

// AnalysisWorkflow runs stage 1 in-process: every analyzer branch is
// dispatched concurrently and the outcomes are returned unmerged.
type AnalysisWorkflow struct {
	dispatcher *fanout.Dispatcher
	analyzers  []*services.Analyzer
	logger     *slog.Logger
}

// NewAnalysisWorkflow creates the stage-1 workflow
func NewAnalysisWorkflow(dispatcher *fanout.Dispatcher, analyzers []*services.Analyzer, logger *slog.Logger) *AnalysisWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisWorkflow{
		dispatcher: dispatcher,
		analyzers:  analyzers,
		logger:     logger,
	}
}

// Name returns the workflow name
func (w *AnalysisWorkflow) Name() string {
	return "AnalysisWorkflow"
}

// Analyze dispatches the image to every analyzer and waits for all of them
func (w *AnalysisWorkflow) Analyze(ctx context.Context, imageBase64, requestID string) (*services.AnalysisResult, error) {
	start := time.Now()

	branches := make([]fanout.Branch, 0, len(w.analyzers))
	for _, a := range w.analyzers {
		branches = append(branches, fanout.Branch{
			Name: a.Name(),
			Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
				return a.Analyze(ctx, imageBase64, requestID)
			},
		})
	}

	w.logger.Info("dispatching analyzers", "request_id", requestID, "branches", len(branches), "max_concurrent", w.dispatcher.MaxConcurrent())

	results, err := w.dispatcher.Dispatch(ctx, requestID, branches)
	if err != nil {
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}

	elapsed := time.Since(start)
	w.logger.Info("analyzers finished", "request_id", requestID, "present", results.PresentCount(), "total", len(results), "duration_ms", elapsed.Milliseconds())

	return &services.AnalysisResult{
		Branches:       results,
		ProcessingTime: elapsed,
	}, nil
}

// Targets returns the analyzers as health probe targets
func (w *AnalysisWorkflow) Targets() []health.Target {
	targets := make([]health.Target, 0, len(w.analyzers))
	for _, a := range w.analyzers {
		targets = append(targets, a)
	}
	return targets
}
