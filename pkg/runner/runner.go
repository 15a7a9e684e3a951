package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/roast-pipeline/internal/config"
	"github.com/tendant/roast-pipeline/internal/fanout"
	"github.com/tendant/roast-pipeline/internal/health"
	"github.com/tendant/roast-pipeline/internal/imageprep"
	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/internal/services"
	"github.com/tendant/roast-pipeline/internal/tokens"
	"github.com/tendant/roast-pipeline/internal/workflows"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// Analyzer describes one analysis branch
type Analyzer struct {
	Name string // Branch name, e.g. pipeline.BranchFaceAnalysis
	URL  string // Analyzer base URL
	Path string // Optional: defaults to "/analyze"
}

// Config holds the configuration for initializing the pipeline runner
type Config struct {
	ServiceName    string
	ServiceVersion string

	// AnalysisURL selects remote stage 1 when set; otherwise Analyzers are
	// dispatched in-process
	AnalysisURL string
	Analyzers   []Analyzer

	GenerationURL string // URL of the generation service

	MaxConcurrent    int           // Optional: defaults to 5
	ServiceTimeout   time.Duration // Optional: per-call timeout, defaults to 30s
	AnalysisTimeout  time.Duration // Optional: remote stage-1 timeout, defaults to ServiceTimeout plus config.AnalysisMargin
	HealthTimeout    time.Duration // Optional: defaults to 5s
	SceneTokenBudget int           // Optional: 0 disables truncation

	MaxImageBytes  int64 // Optional: defaults to 10 MiB
	MaxImageWidth  int   // Optional: defaults to 1920
	MaxImageHeight int   // Optional: defaults to 1080

	HTTPClient *http.Client          // Optional
	Registerer prometheus.Registerer // Optional: metrics are not recorded when nil
	Logger     *slog.Logger          // Optional
}

// FromConfig maps the process configuration onto a runner Config.
// remote selects the stage-1 service instead of in-process analyzers.
func FromConfig(cfg *config.Config, remote bool) Config {
	rc := Config{
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.ServiceVersion,
		GenerationURL:    cfg.LLMInferencerURL,
		MaxConcurrent:    cfg.MaxConcurrentRequests,
		ServiceTimeout:   cfg.ServiceTimeout,
		AnalysisTimeout:  cfg.AnalysisDeadline(),
		HealthTimeout:    cfg.HealthTimeout,
		SceneTokenBudget: cfg.SceneTokenBudget,
		MaxImageBytes:    cfg.MaxRequestSize,
		MaxImageWidth:    cfg.MaxImageWidth,
		MaxImageHeight:   cfg.MaxImageHeight,
	}
	if remote {
		rc.AnalysisURL = cfg.ImageProcessingOrchestratorURL
	}
	for _, a := range cfg.Analyzers {
		rc.Analyzers = append(rc.Analyzers, Analyzer{Name: a.Name, URL: a.URL, Path: a.Path})
	}
	return rc
}

// Runner provides a high-level API for running the roast pipeline
type Runner struct {
	analyzer       workflows.Analyzer
	analysis       *workflows.AnalysisWorkflow
	workflow       *workflows.RoastWorkflow
	preparer       *imageprep.Preparer
	probe          *health.Probe
	analyzersProbe *health.Probe
}

// New creates and wires every pipeline component
func New(cfg Config) (*Runner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GenerationURL == "" {
		return nil, fmt.Errorf("generation URL is required")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = fanout.DefaultMaxConcurrent
	}
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be at least 1, got %d", maxConcurrent)
	}

	serviceTimeout := cfg.ServiceTimeout
	if serviceTimeout <= 0 {
		serviceTimeout = services.DefaultTimeout
	}
	analysisTimeout := cfg.AnalysisTimeout
	if analysisTimeout <= 0 {
		analysisTimeout = serviceTimeout + config.AnalysisMargin
	}
	if cfg.AnalysisURL != "" && analysisTimeout <= serviceTimeout {
		return nil, fmt.Errorf("analysis timeout %s must exceed service timeout %s", analysisTimeout, serviceTimeout)
	}

	var m *metrics.Metrics
	if cfg.Registerer != nil {
		m = metrics.New(cfg.Registerer)
	}

	userAgent := fmt.Sprintf("roast-pipeline/%s/%s", cfg.ServiceName, cfg.ServiceVersion)
	opts := []services.Option{
		services.WithTimeout(serviceTimeout),
		services.WithUserAgent(userAgent),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, services.WithHTTPClient(cfg.HTTPClient))
	}

	// Stage 1 branches
	seen := make(map[string]bool, len(cfg.Analyzers))
	analyzers := make([]*services.Analyzer, 0, len(cfg.Analyzers))
	for _, a := range cfg.Analyzers {
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: %s", fanout.ErrDuplicateBranch, a.Name)
		}
		seen[a.Name] = true
		analyzers = append(analyzers, services.NewAnalyzer(services.NewClient(a.Name, a.URL, opts...), a.Path))
	}
	dispatcher := fanout.NewDispatcher(maxConcurrent, fanout.WithMetrics(m), fanout.WithLogger(logger))
	analysis := workflows.NewAnalysisWorkflow(dispatcher, analyzers, logger)

	// Stage 2
	budget := tokens.NewBudget(cfg.SceneTokenBudget, logger)
	generation := services.NewGenerationClient(services.NewClient("llm_inferencer", cfg.GenerationURL, opts...), budget)

	targets := []health.Target{generation}
	var analyzer workflows.Analyzer = analysis
	if cfg.AnalysisURL != "" {
		// Outlives the branch timeouts inside stage 1
		remoteOpts := append(append([]services.Option{}, opts...), services.WithTimeout(analysisTimeout))
		remote := services.NewAnalysisClient(services.NewClient("image_processing_orchestrator", cfg.AnalysisURL, remoteOpts...))
		analyzer = remote
		targets = append([]health.Target{remote}, targets...)
	} else {
		targets = append(analysis.Targets(), targets...)
	}

	return &Runner{
		analyzer:       analyzer,
		analysis:       analysis,
		workflow:       workflows.NewRoastWorkflow(analyzer, generation, m, logger),
		preparer:       imageprep.NewPreparer(cfg.MaxImageBytes, cfg.MaxImageWidth, cfg.MaxImageHeight),
		probe:          health.NewProbe(targets, cfg.HealthTimeout, m, logger),
		analyzersProbe: health.NewProbe(analysis.Targets(), cfg.HealthTimeout, m, logger),
	}, nil
}

// Roast validates and normalizes the image, then runs both stages
func (r *Runner) Roast(ctx context.Context, image io.Reader, level pipeline.RoastLevel) (*pipeline.RoastResponse, error) {
	if _, err := pipeline.ParseRoastLevel(string(level)); err != nil {
		return nil, err
	}
	prepared, err := r.preparer.Prepare(image)
	if err != nil {
		return nil, err
	}
	return r.RoastBase64(ctx, prepared.Base64, level)
}

// RoastBase64 runs both stages on an already normalized, base64 encoded image
func (r *Runner) RoastBase64(ctx context.Context, imageBase64 string, level pipeline.RoastLevel) (*pipeline.RoastResponse, error) {
	result, err := r.workflow.Run(ctx, workflows.RoastRequest{
		ImageBase64: imageBase64,
		RoastLevel:  string(level),
	})
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

// Workflow returns the roast coordinator
func (r *Runner) Workflow() *workflows.RoastWorkflow {
	return r.workflow
}

// Analysis returns the in-process stage-1 workflow
func (r *Runner) Analysis() *workflows.AnalysisWorkflow {
	return r.analysis
}

// Preparer returns the image normalizer
func (r *Runner) Preparer() *imageprep.Preparer {
	return r.preparer
}

// Probe checks the services both stages depend on
func (r *Runner) Probe() *health.Probe {
	return r.probe
}

// AnalyzersProbe checks only the analyzer branches
func (r *Runner) AnalyzersProbe() *health.Probe {
	return r.analyzersProbe
}

// Health runs the stage-level probe
func (r *Runner) Health(ctx context.Context) health.Verdict {
	return r.probe.Check(ctx)
}
