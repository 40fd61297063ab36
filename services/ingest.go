package services

import (
	"context"
	"fmt"
	"time"

	"local-rag-platform/internal/ai"
	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/telemetry"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/models"
)

// IngestService is the chunk-embed-index tail of the pipeline. Every
// ingestion path (uploads, watched files, crawled pages) funnels
// through IndexText.
type IngestService struct {
	config  *config.Config
	chunker *ChunkingService
	store   vectorstore.Store
	cache   *CacheService
	metrics *telemetry.Metrics
}

func NewIngestService(cfg *config.Config, store vectorstore.Store, cache *CacheService, metrics *telemetry.Metrics) *IngestService {
	return &IngestService{
		config:  cfg,
		chunker: NewChunkingService(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize, cfg.Separators),
		store:   store,
		cache:   cache,
		metrics: metrics,
	}
}

// IndexText chunks text and writes embeddings into the vector index,
// replacing whatever was indexed for the same source before. Returns
// the chunks so callers can persist them on the document record.
func (is *IngestService) IndexText(ctx context.Context, docID, source, fileHash, text string) ([]models.ContentChunk, error) {
	start := time.Now()

	chunks := is.chunker.ChunkText(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced for %s", source)
	}

	// Replace, don't append: a re-ingested source must not leave stale
	// chunks behind.
	if err := is.store.DeleteBySource(ctx, source); err != nil {
		logger.Warn("Failed to clear previous index entries", "source", source, "error", err)
	}

	records := make([]vectorstore.Record, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := is.embed(ctx, chunk.Text)
		if err != nil {
			is.recordIngest(start, "failed", len(records))
			return nil, fmt.Errorf("embedding chunk %d of %s: %w", chunk.Order, source, err)
		}

		records = append(records, vectorstore.Record{
			ID:        fmt.Sprintf("%s_%d", docID, chunk.Order),
			Text:      chunk.Text,
			Embedding: embedding,
			Metadata: map[string]interface{}{
				vectorstore.MetaSource:   source,
				vectorstore.MetaDocID:    docID,
				vectorstore.MetaChunkNum: chunk.Order,
				vectorstore.MetaFileHash: fileHash,
			},
		})
	}

	if err := is.store.Add(ctx, records); err != nil {
		is.recordIngest(start, "failed", 0)
		return nil, fmt.Errorf("indexing %s: %w", source, err)
	}

	if is.cache != nil {
		is.cache.InvalidateQueries(ctx)
	}
	is.recordIngest(start, "completed", len(records))

	logger.Info("Indexed source", "source", source, "chunks", len(records))
	return chunks, nil
}

// Remove deletes every indexed chunk for a source and invalidates
// cached answers that may cite it.
func (is *IngestService) Remove(ctx context.Context, source string) error {
	if err := is.store.DeleteBySource(ctx, source); err != nil {
		return err
	}
	if is.cache != nil {
		is.cache.InvalidateQueries(ctx)
	}
	return nil
}

func (is *IngestService) embed(ctx context.Context, text string) ([]float32, error) {
	if is.cache != nil {
		if embedding, ok := is.cache.GetEmbedding(ctx, text); ok {
			return embedding, nil
		}
	}

	embedding, err := ai.GenerateEmbedding(ctx, is.config, text)
	if err != nil {
		return nil, err
	}

	if is.cache != nil {
		is.cache.SetEmbedding(ctx, text, embedding)
	}
	return embedding, nil
}

func (is *IngestService) recordIngest(start time.Time, status string, chunks int) {
	if is.metrics != nil {
		is.metrics.RecordIngest(time.Since(start).Seconds(), status, int64(chunks))
	}
}
