package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/queue"
	"local-rag-platform/internal/telemetry"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, embedding cache disabled", "error", err)
		redisClient = nil
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	store, err := newWorkerStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector index:", err)
	}
	cache := services.NewCacheService(redisClient, cfg.CacheTTLSeconds)
	ingest := services.NewIngestService(cfg, store, cache, metrics)

	extractor, err := services.NewExtractorService(cfg)
	if err != nil {
		log.Fatal("Failed to initialize extractor:", err)
	}

	processor := queue.NewTaskProcessor(cfg, db, extractor, ingest)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessDocument, processor.ProcessDocument)
	mux.HandleFunc(queue.TaskProcessCrawl, processor.ProcessCrawl)

	logger.Info("Starting worker",
		"concurrency", 10,
		"redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

// newWorkerStore requires a shared index backend. An in-memory store
// would be private to this process: the worker would ingest into it
// while the API server queries its own, so refuse to start instead.
func newWorkerStore(cfg *config.Config) (vectorstore.Store, error) {
	if !cfg.ChromaEnabled {
		return nil, fmt.Errorf("worker needs a shared vector index; set CHROMA_ENABLED=true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := vectorstore.NewChromaStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Chroma at %s: %w", cfg.ChromaURL, err)
	}
	return store, nil
}
