package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"local-rag-platform/internal/ai"
	"local-rag-platform/internal/config"
	"local-rag-platform/internal/crawler"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/queue"
	"local-rag-platform/internal/telemetry"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/internal/watcher"
	"local-rag-platform/middleware"
	"local-rag-platform/models"
	"local-rag-platform/routes"
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
		logger.Warn("Redis unavailable, caching and rate limiting disabled", "error", err)
		redisClient = nil
	}

	shutdownTracer, err := telemetry.InitTracer("local-rag-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	store := buildStore(cfg)

	ollama := ai.NewOllamaClient(cfg, metrics)
	cache := services.NewCacheService(redisClient, cfg.CacheTTLSeconds)
	ingest := services.NewIngestService(cfg, store, cache, metrics)
	rag := services.NewRAGService(cfg, store, ollama, cache, db.Collection("messages"), metrics)
	summarizer := services.NewSummarizationService(ollama, cache)
	exporter := services.NewExportService(db.Collection("messages"))

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	scheduler := crawler.NewScheduler()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	if redisClient != nil {
		router.Use(middleware.RateLimitMiddleware(redisClient, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", handleReady(mongoClient, redisClient))

	routes.SetupAuthRoutes(router, cfg, db)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(cfg.JWTSecret))

	routes.SetupDocumentRoutes(api, routes.DocumentDeps{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
		Store:       store,
		Ingest:      ingest,
		Summarizer:  summarizer,
	})
	routes.SetupChatRoutes(api, rag, exporter)
	routes.SetupCrawlRoutes(api, routes.CrawlDeps{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
		Scheduler:   scheduler,
	})

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	startWatcher(watchCtx, cfg, db, queueClient, store, ingest, scheduler)
	restoreRecrawlSchedules(db, queueClient, scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	cancelWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

// buildStore picks the vector index backend. Falls back to the
// in-memory index when Chroma is disabled or unreachable so the
// service still starts.
func buildStore(cfg *config.Config) vectorstore.Store {
	if !cfg.ChromaEnabled {
		logger.Info("Using in-memory vector index")
		return vectorstore.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := vectorstore.NewChromaStore(ctx, cfg)
	if err != nil {
		logger.Warn("Chroma unavailable, falling back to in-memory index", "error", err)
		return vectorstore.NewMemoryStore()
	}
	logger.Info("Connected to Chroma", "url", cfg.ChromaURL, "collection", cfg.ChromaCollection)
	return store
}

// startWatcher begins watch-directory ingestion: an initial reconcile,
// the filesystem event loop and the periodic rescan.
func startWatcher(ctx context.Context, cfg *config.Config, db *mongo.Database,
	queueClient *asynq.Client, store vectorstore.Store, ingest *services.IngestService,
	scheduler *crawler.Scheduler) {
	if cfg.WatchDir == "" {
		return
	}

	w := watcher.New(cfg, db, queueClient, store, ingest)

	go func() {
		if err := w.ScanAndReconcile(ctx); err != nil {
			logger.Warn("Initial directory scan failed", "error", err)
		}
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Directory watcher stopped", "error", err)
		}
	}()

	if cfg.RescanCron != "" {
		err := scheduler.ScheduleCron("rescan", cfg.RescanCron, func() {
			if err := w.ScanAndReconcile(context.Background()); err != nil {
				logger.Warn("Scheduled rescan failed", "error", err)
			}
		})
		if err != nil {
			logger.Warn("Failed to schedule rescan", "cron", cfg.RescanCron, "error", err)
		}
	}
}

// restoreRecrawlSchedules re-registers recrawl cron jobs after a
// restart. Schedules live only in memory.
func restoreRecrawlSchedules(db *mongo.Database, queueClient *asynq.Client, scheduler *crawler.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := db.Collection("crawls").Find(ctx, bson.M{
		"recrawl_cron": bson.M{"$ne": ""},
	})
	if err != nil {
		logger.Warn("Failed to load recrawl schedules", "error", err)
		return
	}
	defer cursor.Close(ctx)

	var jobs []models.CrawlJob
	if err := cursor.All(ctx, &jobs); err != nil {
		logger.Warn("Failed to decode recrawl schedules", "error", err)
		return
	}

	for _, job := range jobs {
		id := job.ID.Hex()
		err := scheduler.ScheduleCron("crawl:"+id, job.RecrawlCron, func() {
			task, err := queue.NewCrawlProcessTask(id)
			if err != nil {
				return
			}
			if _, err := queueClient.Enqueue(task); err != nil {
				logger.Warn("Scheduled recrawl enqueue failed", "crawl_id", id, "error", err)
			}
		})
		if err != nil {
			logger.Warn("Failed to restore recrawl schedule", "crawl_id", id, "error", err)
		}
	}
}

func handleReady(mongoClient *mongo.Client, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if err := mongoClient.Ping(ctx, nil); err != nil {
			checks["mongodb"] = "down"
			healthy = false
		} else {
			checks["mongodb"] = "up"
		}

		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				checks["redis"] = "down"
			} else {
				checks["redis"] = "up"
			}
		} else {
			checks["redis"] = "disabled"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"checks": checks, "timestamp": time.Now()})
	}
}
