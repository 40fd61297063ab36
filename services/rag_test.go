package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-rag-platform/internal/ai"
	"local-rag-platform/internal/config"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/models"
)

// fakeModelServer answers the chat and embeddings endpoints the way a
// local model runtime does.
func fakeModelServer(t *testing.T, embedding []float32, answer string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["model"])

		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": embedding})
	})

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string           `json:"model"`
			Messages []ai.ChatMessage `json:"messages"`
			Stream   bool             `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":           map[string]string{"role": "assistant", "content": answer},
			"done":              true,
			"prompt_eval_count": 42,
			"eval_count":        10,
		})
	})

	return httptest.NewServer(mux)
}

func newTestRAG(t *testing.T, serverURL string, store vectorstore.Store) *RAGService {
	t.Helper()

	cfg := &config.Config{
		OllamaBaseURL:  serverURL,
		ChatModel:      "qwen2.5:7b",
		EmbedModel:     "nomic-embed-text:v1.5",
		OllamaTimeout:  5,
		ModelMaxTokens: 512,
		RetrievalTopK:  2,
		HistoryWindow:  5,
	}

	return NewRAGService(cfg, store, ai.NewOllamaClient(cfg, nil), nil, nil, nil)
}

func TestRAGAskRetrievesAndAnswers(t *testing.T) {
	server := fakeModelServer(t, []float32{1, 0, 0}, "The answer is in the manual.")
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Add(context.Background(), []vectorstore.Record{
		{
			ID: "doc-0", Text: "Manual section about setup.", Embedding: []float32{1, 0, 0},
			Metadata: map[string]interface{}{
				vectorstore.MetaSource:   "manual.pdf",
				vectorstore.MetaDocID:    "abc123",
				vectorstore.MetaChunkNum: 0,
			},
		},
		{
			ID: "doc-1", Text: "Unrelated appendix.", Embedding: []float32{0, 0, 1},
			Metadata: map[string]interface{}{vectorstore.MetaSource: "manual.pdf"},
		},
	}))

	rag := newTestRAG(t, server.URL, store)

	resp, err := rag.Ask(context.Background(), &models.ChatRequest{Message: "How do I set it up?"})
	require.NoError(t, err)

	assert.Equal(t, "The answer is in the manual.", resp.Answer)
	assert.Equal(t, 52, resp.TokensUsed)
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.CacheHit)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Manual section about setup.", resp.Sources[0].Text)
	assert.Equal(t, "manual.pdf", resp.Sources[0].Source)
	assert.Equal(t, "abc123", resp.Sources[0].DocID)
}

func TestRAGAskKeepsProvidedSession(t *testing.T) {
	server := fakeModelServer(t, []float32{1, 0}, "ok")
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	rag := newTestRAG(t, server.URL, store)

	resp, err := rag.Ask(context.Background(), &models.ChatRequest{
		Message:   "anything",
		SessionID: "session-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-42", resp.SessionID)
	assert.Empty(t, resp.Sources)
}

func TestRAGRetrieveTopKLimit(t *testing.T) {
	server := fakeModelServer(t, []float32{1, 0}, "unused")
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Add(context.Background(), []vectorstore.Record{
		{ID: "a", Text: "a", Embedding: []float32{1, 0}},
		{ID: "b", Text: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Text: "c", Embedding: []float32{0.8, 0.2}},
	}))

	rag := newTestRAG(t, server.URL, store)

	sources, cacheHit, err := rag.Retrieve(context.Background(), "question", 2)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Len(t, sources, 2)
}

func TestBuildMessagesIncludesContextAndHistory(t *testing.T) {
	rag := newTestRAG(t, "http://unused", vectorstore.NewMemoryStore())

	sources := []models.SourceChunk{
		{Text: "First chunk.", Source: "a.txt"},
		{Text: "Second chunk.", Source: "b.txt"},
	}
	history := []models.Message{
		{Question: "earlier question", Answer: "earlier answer"},
	}

	messages := rag.buildMessages("current question", sources, history)

	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "Context 1:")
	assert.Contains(t, messages[0].Content, "First chunk.")
	assert.Contains(t, messages[0].Content, "Context 2:")

	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "earlier question", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)

	assert.Equal(t, "user", messages[3].Role)
	assert.Equal(t, "current question", messages[3].Content)
}

func TestBuildMessagesWithoutContext(t *testing.T) {
	rag := newTestRAG(t, "http://unused", vectorstore.NewMemoryStore())

	messages := rag.buildMessages("question", nil, nil)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "No relevant context")
}
