// Package queue defines the background tasks that run the ingestion
// pipeline: document processing and crawl execution.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/crawler"
	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
	"local-rag-platform/services"
	"local-rag-platform/utils"
)

const (
	TaskProcessDocument = "document:process"
	TaskProcessCrawl    = "crawl:process"
)

type DocumentProcessPayload struct {
	DocID    string `json:"doc_id"`
	FilePath string `json:"file_path"`
}

type CrawlProcessPayload struct {
	CrawlID string `json:"crawl_id"`
}

func NewDocumentProcessTask(docID, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{DocID: docID, FilePath: filePath})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

func NewCrawlProcessTask(crawlID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CrawlProcessPayload{CrawlID: crawlID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessCrawl,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued ingestion work.
type TaskProcessor struct {
	config    *config.Config
	db        *mongo.Database
	extractor *services.ExtractorService
	ingest    *services.IngestService
}

func NewTaskProcessor(cfg *config.Config, db *mongo.Database, extractor *services.ExtractorService, ingest *services.IngestService) *TaskProcessor {
	return &TaskProcessor{
		config:    cfg,
		db:        db,
		extractor: extractor,
		ingest:    ingest,
	}
}

// ProcessDocument runs extract, chunk, embed and index for one file,
// updating the document record's status and progress along the way.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing document", "doc_id", payload.DocID, "path", payload.FilePath)

	docID, err := primitive.ObjectIDFromHex(payload.DocID)
	if err != nil {
		return fmt.Errorf("invalid doc id %q: %w", payload.DocID, asynq.SkipRetry)
	}

	docs := p.db.Collection("documents")
	var doc models.Document
	if err := docs.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc); err != nil {
		return fmt.Errorf("document %s not found: %w", payload.DocID, asynq.SkipRetry)
	}

	p.updateDocument(ctx, docID, bson.M{"status": models.StatusProcessing, "progress": 10})

	extraction, err := p.extractor.ExtractText(ctx, payload.FilePath)
	if err != nil {
		p.failDocument(ctx, docID, fmt.Sprintf("extraction failed: %v", err))
		return err
	}

	p.updateDocument(ctx, docID, bson.M{"progress": 40})

	source := doc.SourceRef
	if source == "" {
		source = payload.FilePath
	}

	chunks, err := p.ingest.IndexText(ctx, payload.DocID, source, doc.FileHash, extraction.Text)
	if err != nil {
		p.failDocument(ctx, docID, fmt.Sprintf("indexing failed: %v", err))
		return err
	}

	p.updateDocument(ctx, docID, bson.M{"progress": 90})

	if doc.CompressionEnabled {
		chunks, err = compressChunks(chunks)
		if err != nil {
			logger.Warn("Chunk compression failed, storing plain", "doc_id", payload.DocID, "error", err)
		}
	}

	now := time.Now()
	p.updateDocument(ctx, docID, bson.M{
		"status":                     models.StatusCompleted,
		"progress":                   100,
		"content_chunks":             chunks,
		"processed_at":               now,
		"metadata.pages":             extraction.Pages,
		"metadata.word_count":        extraction.WordCount,
		"metadata.character_count":   extraction.CharacterCount,
		"metadata.extraction_method": extraction.Method,
		"metadata.quality_score":     extraction.QualityScore,
		"metadata.processing_time":   extraction.ProcessingTime,
		"metadata.cache_hit":         extraction.CacheHit,
	})

	logger.Info("Document processed", "doc_id", payload.DocID, "chunks", len(chunks))
	return nil
}

// ProcessCrawl runs a crawl job and indexes every page it returns.
func (p *TaskProcessor) ProcessCrawl(ctx context.Context, t *asynq.Task) error {
	var payload CrawlProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	crawlID, err := primitive.ObjectIDFromHex(payload.CrawlID)
	if err != nil {
		return fmt.Errorf("invalid crawl id %q: %w", payload.CrawlID, asynq.SkipRetry)
	}

	crawls := p.db.Collection("crawls")
	var job models.CrawlJob
	if err := crawls.FindOne(ctx, bson.M{"_id": crawlID}).Decode(&job); err != nil {
		return fmt.Errorf("crawl %s not found: %w", payload.CrawlID, asynq.SkipRetry)
	}

	p.updateCrawl(ctx, crawlID, bson.M{"status": models.CrawlStatusCrawling, "progress": 5})

	timeout := time.Duration(p.config.CrawlTimeout) * time.Second
	result, err := crawler.Crawl(crawler.ConfigFromJob(&job, timeout))
	if err != nil {
		p.updateCrawl(ctx, crawlID, bson.M{
			"status": models.CrawlStatusFailed,
			"error":  err.Error(),
		})
		return err
	}

	p.updateCrawl(ctx, crawlID, bson.M{
		"progress":    50,
		"title":       result.Title,
		"pages_found": result.PagesFound,
	})

	indexed := 0
	for _, page := range result.Pages {
		docID, err := p.upsertCrawledDocument(ctx, crawlID, page)
		if err != nil {
			logger.Warn("Failed to record crawled page", "url", page.URL, "error", err)
			continue
		}

		if _, err := p.ingest.IndexText(ctx, docID, page.URL, "", page.Content); err != nil {
			logger.Warn("Failed to index crawled page", "url", page.URL, "error", err)
			continue
		}
		indexed++

		progress := 50 + (indexed*50)/len(result.Pages)
		p.updateCrawl(ctx, crawlID, bson.M{"progress": progress, "pages_crawled": indexed})
	}

	if indexed == 0 {
		p.updateCrawl(ctx, crawlID, bson.M{
			"status": models.CrawlStatusFailed,
			"error":  "no pages could be indexed",
		})
		return fmt.Errorf("crawl %s produced no indexable pages", payload.CrawlID)
	}

	now := time.Now()
	p.updateCrawl(ctx, crawlID, bson.M{
		"status":        models.CrawlStatusCompleted,
		"progress":      100,
		"pages_crawled": indexed,
		"completed_at":  now,
	})

	logger.Info("Crawl completed", "crawl_id", payload.CrawlID, "pages", indexed)
	return nil
}

// upsertCrawledDocument keeps one document record per crawled URL.
func (p *TaskProcessor) upsertCrawledDocument(ctx context.Context, crawlID primitive.ObjectID, page models.CrawledPage) (string, error) {
	docs := p.db.Collection("documents")

	filter := bson.M{"source": models.SourceCrawl, "source_ref": page.URL}
	update := bson.M{
		"$set": bson.M{
			"original_name":       page.Title,
			"status":              models.StatusCompleted,
			"progress":            100,
			"processed_at":        page.CrawledAt,
			"metadata.size":       page.Size,
			"metadata.word_count": page.WordCount,
		},
		"$setOnInsert": bson.M{
			"source":      models.SourceCrawl,
			"source_ref":  page.URL,
			"filename":    page.URL,
			"uploaded_at": page.CrawledAt,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc models.Document
	if err := docs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

func (p *TaskProcessor) updateDocument(ctx context.Context, id primitive.ObjectID, fields bson.M) {
	_, err := p.db.Collection("documents").UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		logger.Warn("Failed to update document", "doc_id", id.Hex(), "error", err)
	}
}

func (p *TaskProcessor) failDocument(ctx context.Context, id primitive.ObjectID, msg string) {
	p.updateDocument(ctx, id, bson.M{
		"status":        models.StatusFailed,
		"error_message": msg,
	})
}

func (p *TaskProcessor) updateCrawl(ctx context.Context, id primitive.ObjectID, fields bson.M) {
	fields["updated_at"] = time.Now()
	_, err := p.db.Collection("crawls").UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		logger.Warn("Failed to update crawl", "crawl_id", id.Hex(), "error", err)
	}
}

// compressChunks gzips chunk text for storage, base64 encoded.
func compressChunks(chunks []models.ContentChunk) ([]models.ContentChunk, error) {
	out := make([]models.ContentChunk, len(chunks))
	for i, chunk := range chunks {
		compressed, algorithm, err := utils.CompressText(chunk.Text)
		if err != nil {
			return chunks, fmt.Errorf("compress chunk %d: %w", i, err)
		}
		chunk.Text = base64.StdEncoding.EncodeToString(compressed)
		chunk.Compressed = true
		chunk.Compression = string(algorithm)
		out[i] = chunk
	}
	return out, nil
}
