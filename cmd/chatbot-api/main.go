package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahmed123456787/forsa-tech/pkg/config"
	"github.com/ahmed123456787/forsa-tech/pkg/handlers"
	"github.com/ahmed123456787/forsa-tech/pkg/llm"
	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
	"github.com/ahmed123456787/forsa-tech/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatbot-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewStructuredLogger(logging.Config{
		Level:       logging.LogLevel(cfg.LogLevel),
		Format:      "json",
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	})
	logger.Info("Starting chatbot API",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional query/embedding cache.
	var cache *rag.RedisCache
	if cfg.Cache != nil {
		cache, err = rag.NewRedisCache(ctx, cfg.Cache, logger.Logger)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	embedder, err := rag.NewHTTPEmbedder(&cfg.Embedding, cache, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	searcher, err := rag.NewWeaviateSearcher(&cfg.Weaviate, embedder, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create vector searcher: %w", err)
	}

	chatClient, err := llm.NewClient(&cfg.LLM, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	engine, err := rag.NewSearchEngine(searcher, chatClient, cache, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	generator, err := rag.NewAnswerGenerator(engine, chatClient, logger.Logger, cfg.TopKChunks)
	if err != nil {
		return fmt.Errorf("failed to create answer generator: %w", err)
	}

	ingestor, err := rag.NewIngestor(searcher, embedder, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}

	chats, err := store.NewChatStore(ctx, &cfg.Mongo, logger.Logger)
	if err != nil {
		logger.Warn("MongoDB unavailable, chat history disabled", "error", err)
		chats = nil
	} else {
		defer chats.Close(context.Background())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	health := handlers.NewHealthHandler(cfg.ServiceName, cfg.Version,
		handlers.ReadinessCheck{
			Name: "mongodb",
			Probe: func(ctx context.Context) error {
				if chats == nil {
					return fmt.Errorf("chat store not connected")
				}
				return nil
			},
		},
	)

	router := handlers.NewRouter(handlers.RouterDeps{
		Search:         handlers.NewSearchHandler(engine, metrics, logger),
		Chat:           handlers.NewChatHandler(generator, chats, metrics, logger),
		Stream:         handlers.NewStreamHandler(generator, chats, metrics, logger),
		Ingest:         handlers.NewIngestHandler(ingestor, metrics, logger),
		Health:         health,
		Metrics:        metrics,
		Registry:       registry,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
