package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/ai"
	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/telemetry"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/models"
)

const systemPrompt = `You are a helpful assistant answering questions about the user's documents. Use only the provided context to answer. If the context does not contain the answer, say you don't know rather than guessing. Cite which context block supports your answer when possible.`

// RAGService answers questions by retrieving relevant chunks from the
// vector index and feeding them to the chat model together with recent
// conversation history.
type RAGService struct {
	config       *config.Config
	store        vectorstore.Store
	ollama       *ai.OllamaClient
	cache        *CacheService
	messagesColl *mongo.Collection
	metrics      *telemetry.Metrics
}

func NewRAGService(cfg *config.Config, store vectorstore.Store, ollama *ai.OllamaClient,
	cache *CacheService, messagesColl *mongo.Collection, metrics *telemetry.Metrics) *RAGService {
	return &RAGService{
		config:       cfg,
		store:        store,
		ollama:       ollama,
		cache:        cache,
		messagesColl: messagesColl,
		metrics:      metrics,
	}
}

// Ask runs the full retrieve-and-generate loop for one question.
func (rs *RAGService) Ask(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	topK := req.TopK
	if topK <= 0 {
		topK = rs.config.RetrievalTopK
	}

	sources, cacheHit, err := rs.Retrieve(ctx, req.Message, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	history, err := rs.loadHistory(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load chat history", "session", sessionID, "error", err)
		history = nil
	}

	messages := rs.buildMessages(req.Message, sources, history)

	result, err := rs.ollama.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	if rs.metrics != nil {
		rs.metrics.RecordQuery(cacheHit)
		rs.metrics.RecordTokensUsed(int64(result.TokensUsed), result.Model)
	}

	response := &models.ChatResponse{
		Answer:     result.Text,
		Sources:    sources,
		SessionID:  sessionID,
		TokensUsed: result.TokensUsed,
		CacheHit:   cacheHit,
		Timestamp:  time.Now(),
	}

	if err := rs.saveMessage(ctx, sessionID, req.Message, response); err != nil {
		logger.Warn("Failed to persist chat message", "session", sessionID, "error", err)
	}

	return response, nil
}

// Retrieve embeds the question and returns the topK closest chunks.
// The retrieval result is cached per question.
func (rs *RAGService) Retrieve(ctx context.Context, question string, topK int) ([]models.SourceChunk, bool, error) {
	if rs.cache != nil {
		if cached, ok := rs.cache.GetQueryResult(ctx, question, topK); ok {
			return cached, true, nil
		}
	}

	embedding, err := rs.embedQuery(ctx, question)
	if err != nil {
		return nil, false, err
	}

	results, err := rs.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, false, err
	}

	sources := make([]models.SourceChunk, 0, len(results))
	for _, res := range results {
		chunk := models.SourceChunk{Text: res.Text, Score: res.Score}
		if src, ok := res.Metadata[vectorstore.MetaSource].(string); ok {
			chunk.Source = src
		}
		if docID, ok := res.Metadata[vectorstore.MetaDocID].(string); ok {
			chunk.DocID = docID
		}
		switch num := res.Metadata[vectorstore.MetaChunkNum].(type) {
		case int:
			chunk.Order = num
		case int64:
			chunk.Order = int(num)
		case float64:
			chunk.Order = int(num)
		}
		sources = append(sources, chunk)
	}

	if rs.cache != nil {
		rs.cache.SetQueryResult(ctx, question, topK, sources)
	}

	return sources, false, nil
}

func (rs *RAGService) embedQuery(ctx context.Context, question string) ([]float32, error) {
	if rs.cache != nil {
		if embedding, ok := rs.cache.GetEmbedding(ctx, question); ok {
			return embedding, nil
		}
	}

	embedding, err := ai.GenerateEmbedding(ctx, rs.config, question)
	if err != nil {
		return nil, err
	}

	if rs.cache != nil {
		rs.cache.SetEmbedding(ctx, question, embedding)
	}
	return embedding, nil
}

// buildMessages assembles the chat turn list: system prompt with
// numbered context blocks, then trimmed history, then the question.
func (rs *RAGService) buildMessages(question string, sources []models.SourceChunk, history []models.Message) []ai.ChatMessage {
	var prompt strings.Builder
	prompt.WriteString(systemPrompt)

	if len(sources) > 0 {
		prompt.WriteString("\n\n")
		for i, src := range sources {
			prompt.WriteString(fmt.Sprintf("Context %d:\n%s\n\n", i+1, strings.TrimSpace(src.Text)))
		}
	} else {
		prompt.WriteString("\n\nNo relevant context was found in the indexed documents.")
	}

	messages := []ai.ChatMessage{{Role: "system", Content: prompt.String()}}

	for _, msg := range history {
		messages = append(messages,
			ai.ChatMessage{Role: "user", Content: msg.Question},
			ai.ChatMessage{Role: "assistant", Content: msg.Answer},
		)
	}

	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

// loadHistory returns the last HistoryWindow exchanges, oldest first.
func (rs *RAGService) loadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	if rs.messagesColl == nil || rs.config.HistoryWindow <= 0 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(rs.config.HistoryWindow))

	cursor, err := rs.messagesColl.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recent []models.Message
	if err := cursor.All(ctx, &recent); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (rs *RAGService) saveMessage(ctx context.Context, sessionID, question string, resp *models.ChatResponse) error {
	if rs.messagesColl == nil {
		return nil
	}

	msg := models.Message{
		SessionID:  sessionID,
		Question:   question,
		Answer:     resp.Answer,
		Sources:    resp.Sources,
		TokensUsed: resp.TokensUsed,
		CacheHit:   resp.CacheHit,
		Timestamp:  resp.Timestamp,
	}

	_, err := rs.messagesColl.InsertOne(ctx, msg)
	return err
}

// History returns the full stored conversation for a session.
func (rs *RAGService) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	if rs.messagesColl == nil {
		return nil, fmt.Errorf("message store not configured")
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := rs.messagesColl.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
