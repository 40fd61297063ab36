package routes

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/queue"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/models"
	"local-rag-platform/services"
	"local-rag-platform/utils"
)

// DocumentDeps bundles what the document endpoints need.
type DocumentDeps struct {
	Config      *config.Config
	DB          *mongo.Database
	QueueClient *asynq.Client
	Store       vectorstore.Store
	Ingest      *services.IngestService
	Summarizer  *services.SummarizationService
}

// SetupDocumentRoutes registers document management endpoints on the
// authenticated API group.
func SetupDocumentRoutes(api *gin.RouterGroup, deps DocumentDeps) {
	api.POST("/documents", handleUpload(deps))
	api.GET("/documents", handleListDocuments(deps.DB))
	api.GET("/documents/:id", handleGetDocument(deps.DB))
	api.DELETE("/documents/:id", handleDeleteDocument(deps))
	api.POST("/documents/:id/summarize", handleSummarize(deps))
	api.GET("/stats", handleStats(deps))
}

// handleUpload accepts a file, stores it and queues processing.
// Responds 202: extraction and indexing happen in the worker.
func handleUpload(deps DocumentDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", err.Error())
			return
		}

		if fileHeader.Size > deps.Config.MaxFileSize {
			utils.RespondWithBadRequest(c, "File too large",
				gin.H{"max_bytes": deps.Config.MaxFileSize})
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !services.SupportedExtensions[ext] {
			utils.RespondWithBadRequest(c, "Unsupported file type",
				gin.H{"extension": ext})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		// Content sniff for PDFs: the extension alone is not trusted.
		if ext == ".pdf" && !bytes.HasPrefix(content, []byte("%PDF")) {
			utils.RespondWithBadRequest(c, "File is not a valid PDF", nil)
			return
		}

		sum := sha256.Sum256(content)
		fileHash := hex.EncodeToString(sum[:])

		docs := deps.DB.Collection("documents")

		// Duplicate upload short-circuits to the existing record.
		var existing models.Document
		err = docs.FindOne(c.Request.Context(), bson.M{"file_hash": fileHash}).Decode(&existing)
		if err == nil {
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:       existing.ID.Hex(),
				Filename: existing.OriginalName,
				Status:   existing.Status,
				Message:  "File already uploaded",
			})
			return
		}

		if err := os.MkdirAll(deps.Config.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to prepare storage", nil)
			return
		}

		storedName := uuid.NewString() + ext
		storedPath := filepath.Join(deps.Config.FileStorageDir, storedName)
		if err := os.WriteFile(storedPath, content, 0o644); err != nil {
			utils.RespondWithInternalError(c, "Failed to store file", nil)
			return
		}

		// The stored path is the index source key. The original filename
		// is display-only: two uploads may share it, and replace-by-source
		// on ingest must never let one wipe the other's chunks.
		doc := models.Document{
			Filename:           storedName,
			OriginalName:       fileHeader.Filename,
			FilePath:           storedPath,
			FileHash:           fileHash,
			Source:             models.SourceUpload,
			SourceRef:          storedPath,
			CompressionEnabled: deps.Config.ChunkCompression,
			Status:             models.StatusPending,
			UploadedAt:         time.Now(),
			Metadata:           models.DocumentMetadata{Size: fileHeader.Size},
		}

		result, err := docs.InsertOne(c.Request.Context(), doc)
		if err != nil {
			os.Remove(storedPath)
			utils.RespondWithInternalError(c, "Failed to register document", nil)
			return
		}
		docID := result.InsertedID.(primitive.ObjectID).Hex()

		task, err := queue.NewDocumentProcessTask(docID, storedPath)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create task", nil)
			return
		}
		info, err := deps.QueueClient.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithServiceUnavailable(c, "Processing queue unavailable")
			return
		}

		logger.Info("Upload accepted", "doc_id", docID, "file", fileHeader.Filename)

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ID:       docID,
			Filename: fileHeader.Filename,
			Status:   models.StatusPending,
			Message:  "Document queued for processing",
			TaskID:   info.ID,
		})
	}
}

func handleListDocuments(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := bson.M{}
		if source := c.Query("source"); source != "" {
			filter["source"] = source
		}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}

		opts := options.Find().
			SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).
			SetProjection(bson.M{"content_chunks": 0})

		cursor, err := db.Collection("documents").Find(c.Request.Context(), filter, opts)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		defer cursor.Close(c.Request.Context())

		documents := []models.Document{}
		if err := cursor.All(c.Request.Context(), &documents); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode documents", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": documents,
			"count":     len(documents),
		})
	}
}

func handleGetDocument(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		var doc models.Document
		err = db.Collection("documents").FindOne(c.Request.Context(),
			bson.M{"_id": docID},
			options.FindOne().SetProjection(bson.M{"content_chunks": 0}),
		).Decode(&doc)
		if err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// handleDeleteDocument removes the record, the stored file and every
// indexed chunk for the document.
func handleDeleteDocument(deps DocumentDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		docs := deps.DB.Collection("documents")
		var doc models.Document
		if err := docs.FindOne(c.Request.Context(), bson.M{"_id": docID}).Decode(&doc); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		source := doc.SourceRef
		if source == "" {
			source = doc.FilePath
		}
		if err := deps.Ingest.Remove(c.Request.Context(), source); err != nil {
			logger.Warn("Failed to remove document from index", "doc_id", doc.ID.Hex(), "error", err)
		}

		if doc.FilePath != "" {
			if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
				logger.Warn("Failed to delete stored file", "path", doc.FilePath, "error", err)
			}
		}

		if _, err := docs.DeleteOne(c.Request.Context(), bson.M{"_id": docID}); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": docID.Hex()})
	}
}

// handleSummarize generates (or returns the stored) document summary.
func handleSummarize(deps DocumentDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		docs := deps.DB.Collection("documents")
		var doc models.Document
		if err := docs.FindOne(c.Request.Context(), bson.M{"_id": docID}).Decode(&doc); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		if doc.Status != models.StatusCompleted {
			utils.RespondWithConflict(c, "Document is not processed yet")
			return
		}

		if doc.Summary != "" && c.Query("refresh") != "true" {
			c.JSON(http.StatusOK, gin.H{"id": doc.ID.Hex(), "summary": doc.Summary})
			return
		}

		text, err := assembleDocumentText(doc)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load document text", nil)
			return
		}

		summary, err := deps.Summarizer.SummarizeDocument(c.Request.Context(), doc.ID.Hex(), text)
		if err != nil {
			utils.RespondWithServiceUnavailable(c, fmt.Sprintf("Summarization failed: %v", err))
			return
		}

		_, err = docs.UpdateOne(c.Request.Context(),
			bson.M{"_id": docID},
			bson.M{"$set": bson.M{"summary": summary}})
		if err != nil {
			logger.Warn("Failed to store summary", "doc_id", doc.ID.Hex(), "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"id": doc.ID.Hex(), "summary": summary})
	}
}

// assembleDocumentText reassembles full text from stored chunks,
// decompressing when needed.
func assembleDocumentText(doc models.Document) (string, error) {
	var sb strings.Builder
	for _, chunk := range doc.ContentChunks {
		text := chunk.Text
		if chunk.Compressed {
			decoded, err := decodeChunk(chunk)
			if err != nil {
				return "", err
			}
			text = decoded
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func decodeChunk(chunk models.ContentChunk) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Text)
	if err != nil {
		return "", fmt.Errorf("decode chunk %d: %w", chunk.Order, err)
	}
	return utils.DecompressText(raw, utils.CompressionAlgorithm(chunk.Compression))
}

// handleStats reports index size, document counts and model usage.
func handleStats(deps DocumentDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		indexed, err := deps.Store.Count(ctx)
		if err != nil {
			logger.Warn("Failed to count index", "error", err)
			indexed = -1
		}

		docs := deps.DB.Collection("documents")
		total, _ := docs.CountDocuments(ctx, bson.M{})
		completed, _ := docs.CountDocuments(ctx, bson.M{"status": models.StatusCompleted})
		failed, _ := docs.CountDocuments(ctx, bson.M{"status": models.StatusFailed})
		messages, _ := deps.DB.Collection("messages").CountDocuments(ctx, bson.M{})
		crawls, _ := deps.DB.Collection("crawls").CountDocuments(ctx, bson.M{})

		c.JSON(http.StatusOK, gin.H{
			"documents": gin.H{
				"total":     total,
				"completed": completed,
				"failed":    failed,
			},
			"index": gin.H{
				"chunks": indexed,
			},
			"conversations": gin.H{
				"messages": messages,
			},
			"crawls": crawls,
		})
	}
}
