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

	logger.Info("Starting Broadcast Worker")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize metrics
	metrics := monitoring.NewMetrics()

	// Connect to PostgreSQL
	postgres, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer postgres.Close()

	// Initialize push provider client
	client, err := provider.New(context.Background(), cfg.Provider, logger)
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	logger.Info("Push provider initialized", zap.String("kind", cfg.Provider.Kind))

	// Wire the dispatch engine
	store := push.NewStore(postgres)
	engine := push.NewEngine(store, store, client, metrics, logger)
	defer engine.Shutdown()

	// Initialize Kafka consumer
	consumer := queue.NewConsumer(cfg.Kafka, "broadcast-worker")
	defer consumer.Close()
	logger.Info("Kafka consumer initialized")

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

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consuming broadcast jobs
	go func() {
		logger.Info("Starting to consume broadcast jobs")
		err := consumer.ConsumeBroadcasts(ctx, func(msg queue.BroadcastMessage) error {
			return processBroadcast(ctx, msg, engine, logger)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Consumer error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down broadcast worker...")
	cancel()

	// Give some time for graceful shutdown
	time.Sleep(5 * time.Second)
	logger.Info("Broadcast worker exited")
}

func processBroadcast(
	ctx context.Context,
	msg queue.BroadcastMessage,
	engine *push.Engine,
	logger *zap.Logger,
) error {
	logger.Info("Processing broadcast",
		zap.String("id", msg.ID),
		zap.String("type", msg.Type),
	)

	typ := push.NotificationType(msg.Type)
	if typ == "" {
		typ = push.TypeCustom
	}

	outcome, err := engine.SendToAll(ctx, typ, push.Payload{
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		logger.Error("Broadcast dispatch failed", zap.Error(err), zap.String("id", msg.ID))
		return err
	}

	logger.Info("Broadcast processed",
		zap.String("id", msg.ID),
		zap.Bool("success", outcome.Success),
		zap.Int("sent", outcome.Sent),
		zap.Int("failed", outcome.Failed),
	)
	return nil
}
