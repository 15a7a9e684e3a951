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

// Client-facing gateway: accepts uploads, calls the stage-1 service and the
// generation service, returns the roast
func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.WithDefaults("roast-gateway", ":8000")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	registry := metrics.NewRegistry()

	rc := runner.FromConfig(cfg, true)
	rc.Registerer = registry
	rc.Logger = logger
	pipelineRunner, err := runner.New(rc)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	log.Printf("✓ Roast gateway initialized (%s %s)", cfg.ServiceName, cfg.ServiceVersion)
	log.Printf("  Stage 1: %s", cfg.ImageProcessingOrchestratorURL)
	log.Printf("  Generation: %s", cfg.LLMInferencerURL)
	log.Printf("  Request timeout: %s", cfg.RequestTimeout)

	// Create HTTP server
	mux := http.NewServeMux()

	roastHandler := handlers.NewRoastHandler(pipelineRunner.Workflow(), pipelineRunner.Preparer(), cfg.MaxRequestSize, cfg.RequestTimeout, logger)
	healthHandler := handlers.NewHealthHandler(pipelineRunner.Probe(), cfg.ServiceName, cfg.ServiceVersion)

	// Register handlers
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/api/v1/analyze", roastHandler.HandleAnalyze)
	mux.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Roast gateway starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
