// Package main boots the MensajeMágico backend and wires application
// dependencies.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mensajemagico/backend/internal/cache"
	"github.com/mensajemagico/backend/internal/config"
	"github.com/mensajemagico/backend/internal/guardian"
	"github.com/mensajemagico/backend/internal/orchestrator"
	"github.com/mensajemagico/backend/internal/provider"
	"github.com/mensajemagico/backend/internal/repository"
	"github.com/mensajemagico/backend/internal/server"
	"github.com/mensajemagico/backend/internal/service"
	"github.com/mensajemagico/backend/internal/usage"
	"github.com/mensajemagico/backend/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("configuration loaded", "port", cfg.Port, "embedding_model", cfg.EmbeddingModel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		// Redis is a fast path, not a dependency: run degraded without it.
		slog.Warn("redis unavailable, caching and idempotency claims disabled", "error", err)
		redisClient = nil
	}
	responseCache := cache.New(redisClient, cfg.ResponseCacheTTL, logger)

	geminiClient, err := provider.NewGeminiClient(ctx, cfg.GoogleAPIKey)
	if err != nil {
		log.Fatalf("failed to create gemini client: %v", err)
	}
	var openaiClient provider.TextModel
	if cfg.OpenAIAPIKey != "" {
		client, err := provider.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			log.Fatalf("failed to create openai client: %v", err)
		}
		openaiClient = client
	}
	router := provider.NewRouter(geminiClient, openaiClient)

	embedder, err := provider.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	analyzer := guardian.NewSentimentAnalyzer(embedder, logger)
	guardianService := guardian.NewService(store.Contacts, analyzer, responseCache, logger)

	dispatcher := worker.NewFeedbackDispatcher(cfg.FeedbackQueue, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	ledger, err := usage.NewLedger(store.DB())
	if err != nil {
		log.Fatalf("failed to initialize usage ledger: %v", err)
	}
	orch := orchestrator.New(orchestrator.NewCatalog(cfg), ledger)

	generationService := service.NewGenerationService(
		router, orch, guardianService, responseCache, dispatcher, logger)

	handler := server.NewMagicHandler(generationService, server.NewUsageTracker(), logger)
	engine := server.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}

	slog.Info("server shutdown complete")
}
