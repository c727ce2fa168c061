// researchd server — runs the investment research pipeline behind an HTTP
// API with SSE progress streaming.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/investlabs/researchd/pkg/agent"
	"github.com/investlabs/researchd/pkg/api"
	"github.com/investlabs/researchd/pkg/artifact"
	"github.com/investlabs/researchd/pkg/config"
	"github.com/investlabs/researchd/pkg/database"
	"github.com/investlabs/researchd/pkg/pipeline"
	"github.com/investlabs/researchd/pkg/progress"
	"github.com/investlabs/researchd/pkg/services"
	"github.com/investlabs/researchd/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting researchd",
		"version", version.Full(),
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"data_dir", cfg.Pipeline.DataDir)

	ctx := context.Background()

	// Durable store is optional: without a reachable database the service
	// runs entirely from memory.
	var store services.SessionStore
	var dbClient *database.Client

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	dbClient, err = database.NewClient(connectCtx, dbConfig)
	connectCancel()
	if err != nil {
		slog.Warn("Database unavailable, running with in-memory session store", "error", err)
		dbClient = nil
		store = services.NewMemoryStore()
	} else {
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL database")
		store = services.NewFallbackStore(services.NewPostgresStore(dbClient))
	}

	artifacts, err := artifact.NewStore(cfg.Pipeline.DataDir)
	if err != nil {
		slog.Error("Failed to initialize artifact store", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	runner := agent.NewOpenAIRunner(apiKey, cfg.Pipeline.Model, cfg.Pipeline.DocsDir)
	slog.Info("LLM runner initialized", "model", cfg.Pipeline.Model)

	bus := progress.NewBus()
	orch := pipeline.New(store, bus, artifacts, runner, cfg.Pipeline)

	server := api.NewServer(store, bus, orch, dbClient)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Let running pipelines finish within their budget before cutting them off.
	slog.Info("Draining active pipelines", "active", orch.ActiveCount())
	orch.Drain(cfg.Pipeline.DrainTimeout)
	slog.Info("Pipelines drained")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
