package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/speedx/push-server/api/rest"
	"github.com/speedx/push-server/internal/announce"
	"github.com/speedx/push-server/internal/config"
	"github.com/speedx/push-server/internal/database"
	"github.com/speedx/push-server/internal/monitoring"
	"github.com/speedx/push-server/internal/provider"
	"github.com/speedx/push-server/internal/push"
	"github.com/speedx/push-server/internal/queue"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Push API Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize metrics
	metrics := monitoring.NewMetrics()
	logger.Info("Metrics initialized")

	// Connect to PostgreSQL
	postgres, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer postgres.Close()

	// Initialize database schema
	if err := postgres.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}
	logger.Info("Database connected and schema initialized")

	// Connect to Redis
	redis, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Redis connected")

	// Initialize Kafka producer for broadcast jobs
	producer := queue.NewProducer(cfg.Kafka)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	// Initialize push provider client
	client, err := provider.New(context.Background(), cfg.Provider, logger)
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	logger.Info("Push provider initialized", zap.String("kind", cfg.Provider.Kind))

	// Wire the dispatch engine and supporting services
	store := push.NewStore(postgres)
	engine := push.NewEngine(store, store, client, metrics, logger)
	defer engine.Shutdown()
	registry := push.NewRegistry(store, store, logger)
	gate := push.NewPreferenceGate(store, redis, logger)
	announcements := announce.NewService(postgres, producer, metrics, logger)
	logger.Info("Dispatch engine initialized")

	// Initialize REST API handler
	handler := rest.NewHandler(engine, registry, gate, announcements, metrics, logger)
	router := handler.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Start metrics server if enabled
	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metrics.Handler(),
		}

		go func() {
			logger.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
