package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/docmorph/internal/config"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/queue"
	"github.com/marcus/docmorph/internal/repository"
	"github.com/marcus/docmorph/internal/service"
	"github.com/marcus/docmorph/internal/storage"
	"github.com/marcus/docmorph/internal/worker"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "docmorph-worker"
	appLog := logger.New(logCfg)
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	docRepo := repository.NewDocumentRepository(db)

	// Initialize storage
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

	// The worker is useless without its queue, so a Redis outage is fatal
	// here and the supervisor restarts us.
	jobQueue, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr:      cfg.Queue.RedisAddr,
		Password:  cfg.Queue.RedisPassword,
		DB:        cfg.Queue.RedisDB,
		Retention: cfg.Queue.Retention,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer jobQueue.Close()

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

	w := worker.New(jobQueue, documentService, cfg.Queue.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		appLog.WithError(err).Fatal("Worker stopped unexpectedly")
	}

	appLog.Info("Worker exited")
}
