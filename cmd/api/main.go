// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/config"
	"github.com/capitalize-ai/conversation-engine/internal/events"
	"github.com/capitalize-ai/conversation-engine/internal/handler"
	"github.com/capitalize-ai/conversation-engine/internal/kv"
	"github.com/capitalize-ai/conversation-engine/internal/llm"
	natsclient "github.com/capitalize-ai/conversation-engine/internal/nats"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server", zap.String("store", cfg.StoreBackend))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS when a component needs it
	var natsClient *natsclient.Client
	if cfg.NeedsNATS() {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "conversation-engine",
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()
	}

	// Storage backend
	var backend kv.KV
	switch cfg.StoreBackend {
	case config.StoreMemory:
		backend = kv.NewMemory()
	case config.StoreSQLite:
		sqlStore, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open sqlite store", zap.String("path", cfg.SQLitePath), zap.Error(err))
		}
		defer sqlStore.Close()
		backend = sqlStore
	case config.StoreNATS:
		backend, err = natsclient.NewKeyValueStore(ctx, natsClient, cfg.NATSKVBucket)
		if err != nil {
			log.Fatal("failed to open NATS key-value bucket", zap.String("bucket", cfg.NATSKVBucket), zap.Error(err))
		}
	}

	// Events
	bus := events.NewBus(log)
	defer bus.Close()

	publishers := events.Fanout{bus}
	var replayer handler.Replayer
	if cfg.EventsStreamEnabled {
		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publishers = append(publishers, streamManager)
		replayer = streamManager
	}

	// Initialize services
	conversationStore := store.NewConversationStore(backend, log)
	generator := llm.NewSimulated(llm.WithDelay(cfg.GenerationMinDelay, cfg.GenerationMaxDelay))
	pipeline := service.NewMessageService(conversationStore, generator, log,
		service.WithPublisher(publishers),
		service.WithGenerationTimeout(cfg.GenerationTimeout),
	)
	history := service.NewHistoryService(conversationStore, pipeline, log,
		service.WithSearchDebounce(cfg.SearchDebounce),
	)
	defer history.Close()

	// Initialize handlers
	var natsPinger handler.Pinger
	if natsClient != nil {
		natsPinger = natsClient
	}
	router := handler.NewRouter(handler.Handlers{
		Health:        handler.NewHealthHandler(natsPinger),
		Conversations: handler.NewConversationHandler(pipeline, history, log),
		Messages:      handler.NewMessageHandler(pipeline, conversationStore, log),
		History:       handler.NewHistoryHandler(history, log),
		Stream:        handler.NewStreamHandler(pipeline, conversationStore, bus, replayer, log),
	}, handler.RouterConfig{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let queued replies land before the store closes
	if err := pipeline.Wait(shutdownCtx); err != nil {
		log.Warn("pending assistant responses abandoned", zap.Error(err))
	}

	log.Info("server stopped")
}
