package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/streamdb/internal/config"
	"github.com/devrev/streamdb/internal/handler"
	"github.com/devrev/streamdb/internal/health"
	"github.com/devrev/streamdb/internal/metrics"
	"github.com/devrev/streamdb/internal/middleware"
	"github.com/devrev/streamdb/internal/server"
	"github.com/devrev/streamdb/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("region", cfg.Stream.Region))

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Server.NodeID, registry)

	// Initialize the stream engine
	streamSvc := service.NewStreamService(
		&service.StreamConfig{
			Region:             cfg.Stream.Region,
			AccountID:          cfg.Stream.AccountID,
			MaxStreams:         cfg.Stream.MaxStreams,
			MaxShardsPerStream: cfg.Stream.MaxShardsPerStream,
			IteratorTTL:        cfg.Stream.IteratorTTL,
		},
		m,
		logger,
	)

	// Health checker probes the engine through its cheapest operation
	checker := health.NewChecker(cfg.Server.NodeID, func(ctx context.Context) error {
		_, err := streamSvc.ListStreams(ctx)
		return err
	}, logger)

	healthCtx, cancelHealth := context.WithCancel(context.Background())
	defer cancelHealth()
	go checker.Start(healthCtx)

	// Start metrics server
	if cfg.Metrics.Enabled {
		metricsSrv := server.NewMetricsServer(
			&server.MetricsServerConfig{
				Port: cfg.Metrics.Port,
				Path: cfg.Metrics.Path,
			},
			registry, m, checker, logger,
		)
		if err := metricsSrv.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
		defer metricsSrv.Stop()
	}

	// Assemble the API handler chain
	streamHandler := handler.NewStreamHandler(streamSvc, m, logger)
	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)

	var apiHandler http.Handler = streamHandler
	apiHandler = rateLimiter.Limit(apiHandler)
	apiHandler = middleware.Logging(logger)(apiHandler)
	apiHandler = middleware.Recovery(logger)(apiHandler)
	apiHandler = middleware.RequestID(apiHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Stream node service starting",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("address", httpServer.Addr))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("API server shutdown failed", zap.Error(err))
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}

// initLogger initializes the zap logger
func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
