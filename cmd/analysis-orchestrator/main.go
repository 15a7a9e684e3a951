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

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.WithDefaults("image-processing-orchestrator", ":8001")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	registry := metrics.NewRegistry()

	rc := runner.FromConfig(cfg, false)
	rc.Registerer = registry
	rc.Logger = logger
	pipelineRunner, err := runner.New(rc)
	if err != nil {
		log.Fatalf("Failed to initialize analyzers: %v", err)
	}

	log.Printf("✓ Analysis orchestrator initialized (%s %s)", cfg.ServiceName, cfg.ServiceVersion)
	log.Printf("  Max concurrent analyzer calls: %d", cfg.MaxConcurrentRequests)
	for _, a := range cfg.Analyzers {
		log.Printf("  ✓ Analyzer %s: %s", a.Name, a.URL)
	}

	// Create HTTP server
	mux := http.NewServeMux()

	processHandler := handlers.NewProcessHandler(pipelineRunner.Analysis(), cfg.MaxRequestSize, logger)
	healthHandler := handlers.NewHealthHandler(pipelineRunner.AnalyzersProbe(), cfg.ServiceName, cfg.ServiceVersion)

	// Register handlers
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/api/v1/process", processHandler.HandleProcess)
	mux.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Analysis orchestrator starting on %s", cfg.HTTPAddr)
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
