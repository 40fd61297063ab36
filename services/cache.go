package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
)

// CacheService caches embeddings, retrieval results and summaries in
// redis. Every method degrades to a miss or no-op on redis errors so a
// cache outage never blocks a request.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, ttlSeconds int) *CacheService {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &CacheService{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func queryKey(question string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", question, topK)))
	return "query:" + hex.EncodeToString(sum[:])
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

func summaryKey(docID string) string {
	return "summary:" + docID
}

// GetQueryResult returns cached retrieval results for a question.
func (cs *CacheService) GetQueryResult(ctx context.Context, question string, topK int) ([]models.SourceChunk, bool) {
	if cs.client == nil {
		return nil, false
	}

	data, err := cs.client.Get(ctx, queryKey(question, topK)).Bytes()
	if err != nil {
		return nil, false
	}

	var chunks []models.SourceChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		logger.Warn("Corrupt query cache entry", "error", err)
		return nil, false
	}
	return chunks, true
}

func (cs *CacheService) SetQueryResult(ctx context.Context, question string, topK int, chunks []models.SourceChunk) {
	if cs.client == nil {
		return
	}

	data, err := json.Marshal(chunks)
	if err != nil {
		return
	}
	if err := cs.client.Set(ctx, queryKey(question, topK), data, cs.ttl).Err(); err != nil {
		logger.Warn("Failed to cache query result", "error", err)
	}
}

// GetEmbedding returns a cached embedding for a piece of text.
func (cs *CacheService) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	if cs.client == nil {
		return nil, false
	}

	data, err := cs.client.Get(ctx, embeddingKey(text)).Bytes()
	if err != nil {
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false
	}
	return embedding, true
}

func (cs *CacheService) SetEmbedding(ctx context.Context, text string, embedding []float32) {
	if cs.client == nil {
		return
	}

	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	// Embeddings are deterministic per model, keep them longer.
	if err := cs.client.Set(ctx, embeddingKey(text), data, 24*cs.ttl).Err(); err != nil {
		logger.Warn("Failed to cache embedding", "error", err)
	}
}

func (cs *CacheService) GetSummary(ctx context.Context, docID string) (string, bool) {
	if cs.client == nil {
		return "", false
	}

	summary, err := cs.client.Get(ctx, summaryKey(docID)).Result()
	if err != nil || summary == "" {
		return "", false
	}
	return summary, true
}

func (cs *CacheService) SetSummary(ctx context.Context, docID, summary string) {
	if cs.client == nil {
		return
	}
	if err := cs.client.Set(ctx, summaryKey(docID), summary, cs.ttl).Err(); err != nil {
		logger.Warn("Failed to cache summary", "error", err)
	}
}

// InvalidateQueries drops all cached retrieval results. Called after
// the index changes so answers never cite deleted chunks.
func (cs *CacheService) InvalidateQueries(ctx context.Context) {
	if cs.client == nil {
		return
	}

	iter := cs.client.Scan(ctx, 0, "query:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := cs.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Query cache invalidation scan failed", "error", err)
	}
}

// InvalidateDocument drops the cached summary for one document.
func (cs *CacheService) InvalidateDocument(ctx context.Context, docID string) {
	if cs.client == nil {
		return
	}
	cs.client.Del(ctx, summaryKey(docID))
}
