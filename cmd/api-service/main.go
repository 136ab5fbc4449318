package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kavon2323/vitaius-vestra/internal/api/handler"
	"github.com/kavon2323/vitaius-vestra/internal/api/router"
	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/config"
	"github.com/kavon2323/vitaius-vestra/internal/jobstore"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
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

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, jobs, artifacts)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	cleanup := func() {
		cancel()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, jobs *jobstore.Store, artifacts artifact.Store) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:    logger,
		Jobs:      jobs,
		Artifacts: artifacts,
		Upload: handler.UploadConfig{
			DefaultFolder:      cfg.Upload.DefaultFolder,
			DefaultContentType: cfg.Upload.DefaultContentType,
			DefaultExpiry:      cfg.Upload.DefaultExpiry,
			MaxExpiry:          cfg.Upload.MaxExpiry,
		},
		DownloadExpiry: cfg.Upload.DownloadExpiry,
		Service:        cfg.App.Name,
		Version:        cfg.App.Version,
	}

	return router.SetupRouter(handlerDeps)
}
