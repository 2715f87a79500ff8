package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomaasz/update-ultra/internal/application/orchestrator"
	"github.com/tomaasz/update-ultra/internal/config"
	cacheredis "github.com/tomaasz/update-ultra/pkg/adapters/cachestore/redis"
	eventsmemory "github.com/tomaasz/update-ultra/pkg/adapters/events/memory"
	eventsredis "github.com/tomaasz/update-ultra/pkg/adapters/events/redis"
	"github.com/tomaasz/update-ultra/pkg/adapters/metrics/prometheus"
	storagememory "github.com/tomaasz/update-ultra/pkg/adapters/storage/memory"
	storageredis "github.com/tomaasz/update-ultra/pkg/adapters/storage/redis"
	"github.com/tomaasz/update-ultra/pkg/api/grpc"
	"github.com/tomaasz/update-ultra/pkg/api/http"
	"github.com/tomaasz/update-ultra/pkg/api/websocket"
	"github.com/tomaasz/update-ultra/pkg/cache"
	"github.com/tomaasz/update-ultra/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting update engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("backend", cfg.Backend))

	metricsCollector := prometheus.NewCollector()

	// Initialize backend adapters
	var (
		eventBus     ports.EventBus
		stateStorage ports.StateStorage
		cacheOpts    []cache.Option
		redisClient  *goredis.Client
	)

	if cfg.Backend == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus = eventsredis.NewStreamsEventBus(
			redisClient,
			"updultra-engine",
			fmt.Sprintf("updultra-%d", os.Getpid()),
			logger,
		)
		stateStorage = storageredis.NewSummaryStorage(redisClient, cfg.Engine.SummaryTTL, logger)
		cacheOpts = append(cacheOpts,
			cache.WithBackend(cacheredis.NewStore(redisClient, logger)))
	} else {
		eventBus = eventsmemory.NewEventBus()
		stateStorage = storagememory.NewSummaryStorage()
	}

	cacheOpts = append(cacheOpts, cache.WithMetrics(metricsCollector))
	stepCache := cache.New(logger, cacheOpts...)

	// Initialize the run manager
	manager := orchestrator.NewManager(orchestrator.Config{
		Storage:            stateStorage,
		EventBus:           eventBus,
		Metrics:            metricsCollector,
		Cache:              stepCache,
		Logger:             logger,
		RunTimeout:         cfg.Timeouts.RunTimeout,
		DefaultStepTimeout: cfg.Engine.DefaultStepTimeout,
		DefaultCacheTTL:    cfg.Engine.DefaultCacheTTL,
	})

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Manager: manager,
		Logger:  logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("update engine started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("run manager shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("update engine shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
