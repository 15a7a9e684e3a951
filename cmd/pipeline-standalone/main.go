package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/roast-pipeline/internal/config"
	"github.com/tendant/roast-pipeline/internal/handlers"
	"github.com/tendant/roast-pipeline/internal/logging"
	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/pkg/runner"
)

// Standalone pipeline for quick testing.
// Runs both stages in one process: analyzers are dispatched in-process,
// no separate stage-1 service needed.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.WithDefaults("roast-pipeline-standalone", ":8080")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Roast Pipeline Standalone")
	log.Printf("  Mode: Embedded (in-process stage 1)")
	log.Printf("  HTTP address: %s", cfg.HTTPAddr)

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	registry := metrics.NewRegistry()

	rc := runner.FromConfig(cfg, false)
	rc.Registerer = registry
	rc.Logger = logger
	pipelineRunner, err := runner.New(rc)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	log.Printf("✓ Registered workflow: %s", pipelineRunner.Workflow().Name())
	log.Printf("✓ Registered workflow: %s (%d analyzers)", pipelineRunner.Analysis().Name(), len(cfg.Analyzers))

	// Create HTTP server
	mux := http.NewServeMux()

	roastHandler := handlers.NewRoastHandler(pipelineRunner.Workflow(), pipelineRunner.Preparer(), cfg.MaxRequestSize, cfg.RequestTimeout, logger)
	processHandler := handlers.NewProcessHandler(pipelineRunner.Analysis(), cfg.MaxRequestSize, logger)
	healthHandler := handlers.NewHealthHandler(pipelineRunner.Probe(), cfg.ServiceName, cfg.ServiceVersion)

	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/api/v1/analyze", roastHandler.HandleAnalyze)
	mux.HandleFunc("/api/v1/process", processHandler.HandleProcess)
	mux.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("✓ Roast pipeline ready on %s", cfg.HTTPAddr)
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  curl -F image=@photo.jpg -F roast_level=savage http://localhost%s/api/v1/analyze", cfg.HTTPAddr)
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health           - Health check (analyzers + generation)")
		log.Printf("  POST /api/v1/analyze   - Upload an image, get a roast")
		log.Printf("  POST /api/v1/process   - Stage 1 only (base64 image in, features out)")
		log.Printf("  GET  /metrics          - Prometheus metrics")
		log.Printf("")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
