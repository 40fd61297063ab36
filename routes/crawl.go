package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/crawler"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/queue"
	"local-rag-platform/models"
	"local-rag-platform/utils"
)

// CrawlDeps bundles what the crawl endpoints need.
type CrawlDeps struct {
	Config      *config.Config
	DB          *mongo.Database
	QueueClient *asynq.Client
	Scheduler   *crawler.Scheduler
}

// SetupCrawlRoutes registers crawl job endpoints on the authenticated
// API group.
func SetupCrawlRoutes(api *gin.RouterGroup, deps CrawlDeps) {
	api.POST("/crawls", handleStartCrawl(deps))
	api.GET("/crawls", handleListCrawls(deps.DB))
	api.GET("/crawls/:id", handleGetCrawl(deps.DB))
	api.DELETE("/crawls/:id", handleDeleteCrawl(deps))
}

// handleStartCrawl creates a crawl job and queues it. Jobs with a
// recrawl cron expression are also registered with the scheduler so
// the site is re-fetched on that schedule.
func handleStartCrawl(deps CrawlDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid crawl request", err.Error())
			return
		}

		maxPages := req.MaxPages
		if maxPages <= 0 {
			maxPages = deps.Config.CrawlMaxPages
		}

		now := time.Now()
		job := models.CrawlJob{
			URL:            req.URL,
			Status:         models.CrawlStatusPending,
			MaxPages:       maxPages,
			AllowedDomains: req.AllowedDomains,
			AllowedPaths:   req.AllowedPaths,
			FollowLinks:    req.FollowLinks,
			RespectRobots:  req.RespectRobots,
			RenderJS:       req.RenderJS || deps.Config.CrawlRenderJS,
			RecrawlCron:    req.RecrawlCron,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		crawls := deps.DB.Collection("crawls")
		result, err := crawls.InsertOne(c.Request.Context(), job)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create crawl job", nil)
			return
		}
		crawlID := result.InsertedID.(primitive.ObjectID).Hex()

		if err := enqueueCrawl(c.Request.Context(), deps.QueueClient, crawlID); err != nil {
			utils.RespondWithServiceUnavailable(c, "Processing queue unavailable")
			return
		}

		if req.RecrawlCron != "" {
			id := crawlID
			err := deps.Scheduler.ScheduleCron("crawl:"+id, req.RecrawlCron, func() {
				if err := enqueueCrawl(context.Background(), deps.QueueClient, id); err != nil {
					logger.Warn("Scheduled recrawl enqueue failed", "crawl_id", id, "error", err)
				}
			})
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid recrawl cron expression",
					gin.H{"cron": req.RecrawlCron})
				return
			}
		}

		logger.Info("Crawl job created", "crawl_id", crawlID, "url", req.URL)

		c.JSON(http.StatusAccepted, gin.H{
			"id":     crawlID,
			"url":    req.URL,
			"status": models.CrawlStatusPending,
		})
	}
}

func enqueueCrawl(ctx context.Context, client *asynq.Client, crawlID string) error {
	task, err := queue.NewCrawlProcessTask(crawlID)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task)
	return err
}

func handleListCrawls(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := bson.M{}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}

		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(100)
		cursor, err := db.Collection("crawls").Find(c.Request.Context(), filter, opts)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list crawl jobs", nil)
			return
		}
		defer cursor.Close(c.Request.Context())

		jobs := []models.CrawlJob{}
		if err := cursor.All(c.Request.Context(), &jobs); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode crawl jobs", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"crawls": jobs, "count": len(jobs)})
	}
}

func handleGetCrawl(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		crawlID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid crawl id", nil)
			return
		}

		var job models.CrawlJob
		err = db.Collection("crawls").FindOne(c.Request.Context(), bson.M{"_id": crawlID}).Decode(&job)
		if err != nil {
			utils.RespondWithNotFound(c, "Crawl job not found")
			return
		}

		c.JSON(http.StatusOK, job)
	}
}

// handleDeleteCrawl removes the job record and cancels any recrawl
// schedule. Already-indexed pages stay in the index.
func handleDeleteCrawl(deps CrawlDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		crawlID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid crawl id", nil)
			return
		}

		result, err := deps.DB.Collection("crawls").DeleteOne(c.Request.Context(), bson.M{"_id": crawlID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete crawl job", nil)
			return
		}
		if result.DeletedCount == 0 {
			utils.RespondWithNotFound(c, "Crawl job not found")
			return
		}

		deps.Scheduler.RemoveByTag("crawl:" + crawlID.Hex())

		c.JSON(http.StatusOK, gin.H{"deleted": crawlID.Hex()})
	}
}
