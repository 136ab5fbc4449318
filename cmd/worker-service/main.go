package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/config"
	"github.com/kavon2323/vitaius-vestra/internal/engine"
	"github.com/kavon2323/vitaius-vestra/internal/jobstore"
	"github.com/kavon2323/vitaius-vestra/internal/worker"
	"github.com/kavon2323/vitaius-vestra/shared/logger"
	"github.com/kavon2323/vitaius-vestra/shared/redisdb"
	"github.com/kavon2323/vitaius-vestra/shared/s3client"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize Redis client
	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	appLogger.Info("Redis connection established")

	// Initialize artifact store
	artifacts, err := initArtifactStore(&cfg.ObjectStore, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	appLogger.Info("Object store ready",
		slog.String("backend", cfg.ObjectStore.Backend),
	)

	jobs := jobstore.New(redisClient.Redis(), cfg.Redis.Namespace, appLogger.Logger)
	runner := engine.NewBlenderRunner(cfg.Engine.Binary, cfg.Engine.Script, appLogger.Logger)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:                    appLogger.Logger,
		Jobs:                      jobs,
		Artifacts:                 artifacts,
		Engine:                    runner,
		Concurrency:               cfg.Worker.Concurrency,
		DequeueTimeout:            cfg.Worker.DequeueTimeout,
		WorkDir:                   cfg.Worker.WorkDir,
		OutputPrefix:              cfg.Worker.OutputPrefix,
		EngineTimeout:             cfg.Engine.Timeout,
		TransferRetryAttempts:     cfg.Worker.Transfer.RetryAttempts,
		TransferRetryInterval:     cfg.Worker.Transfer.RetryInterval,
		TransferBackoffMultiplier: cfg.Worker.Transfer.BackoffMultiplier,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerInstance.Start(ctx)

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Cancel context to stop worker loops
	cancel()

	shutdownTimeout := cfg.Worker.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if redisClient != nil {
		redisClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redisdb.Client, error) {
	redisConfig := &redisdb.Config{
		URL:           cfg.URL,
		DialTimeout:   cfg.DialTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
	}

	return redisdb.NewClient(redisConfig, logger)
}

// initArtifactStore initializes the configured artifact store backend
func initArtifactStore(cfg *config.ObjectStoreConfig, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.Backend {
	case config.BackendS3:
		s3Client, err := s3client.NewClient(&s3client.Config{
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Endpoint:       cfg.S3.Endpoint,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		return artifact.NewS3Store(s3Client), nil
	case config.BackendFS:
		return artifact.NewFSStore(cfg.FS.Root)
	default:
		return nil, fmt.Errorf("unknown objectstore backend: %q", cfg.Backend)
	}
}
