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

	"github.com/marcus/docmorph/internal/api"
	"github.com/marcus/docmorph/internal/config"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/queue"
	"github.com/marcus/docmorph/internal/repository"
	"github.com/marcus/docmorph/internal/service"
	"github.com/marcus/docmorph/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "docmorph-api"
	appLog := logger.New(logCfg)
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db)

	// Initialize storage (local filesystem or S3-compatible)
	objectStorage, err := storage.NewStorage(&storage.Config{
		Backend:  cfg.Storage.Backend,
		LocalDir: cfg.Storage.LocalDir,
		S3: storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		},
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize job queue. A Redis outage degrades async transforms but
	// should not keep the API from serving synchronous requests.
	var jobQueue queue.Queue
	redisQueue, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr:      cfg.Queue.RedisAddr,
		Password:  cfg.Queue.RedisPassword,
		DB:        cfg.Queue.RedisDB,
		Retention: cfg.Queue.Retention,
	})
	if err != nil {
		appLog.WithError(err).Warn("Redis unavailable, using in-memory job queue")
		jobQueue = queue.NewMemoryQueue()
	} else {
		defer redisQueue.Close()
		jobQueue = redisQueue
	}

	// Initialize services
	llmClient := service.NewLLMClient(&cfg.LLM)
	transformService := service.NewTransformService(llmClient)
	signer := service.NewDownloadSigner(cfg.Auth.DownloadSecret)
	documentService := service.NewDocumentService(
		docRepo,
		objectStorage,
		transformService,
		signer,
		cfg.Pipeline.MaxProcessingTime,
	)

	// Setup router
	router := api.SetupRouter(documentService, jobQueue, appLog, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}
