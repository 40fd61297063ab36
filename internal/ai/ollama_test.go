package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/telemetry"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		OllamaBaseURL:  baseURL,
		ChatModel:      "llama3.2",
		EmbedModel:     "nomic-embed-text",
		OllamaTimeout:  5,
		ModelMaxTokens: 512,
	}
}

func TestChatReturnsAnswerAndTokens(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(chatResponse{
			Message:         ChatMessage{Role: "assistant", Content: "hello there"},
			Done:            true,
			PromptEvalCount: 30,
			EvalCount:       12,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)
	result, err := client.Chat(context.Background(), []ChatMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Text)
	assert.Equal(t, 42, result.TokensUsed)
	assert.Equal(t, "llama3.2", result.Model)

	assert.Equal(t, "llama3.2", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Len(t, gotReq.Messages, 2)
}

func TestChatEstimatesTokensWhenCountsMissing(t *testing.T) {
	answer := "this answer is exactly forty characters!"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Message: ChatMessage{Role: "assistant", Content: answer},
			Done:    true,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)
	result, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, len(answer)/4, result.TokensUsed)
}

func TestChatPropagatesModelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Error: "model not found"})
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerateReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarize this", req.Prompt)

		json.NewEncoder(w).Encode(generateResponse{
			Response:        "a summary",
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)
	result, err := client.Generate(context.Background(), "summarize this")

	require.NoError(t, err)
	assert.Equal(t, "a summary", result.Text)
	assert.Equal(t, 15, result.TokensUsed)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)

	// Enough failures to trip the breaker, then the fallback answer.
	for i := 0; i < 5; i++ {
		client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	}

	result, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "not responding")
	assert.Zero(t, result.TokensUsed)
}

func TestBreakerStateChangeRecordsMetric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	metrics, err := telemetry.InitMetrics()
	require.NoError(t, err)

	client := NewOllamaClient(testConfig(server.URL), metrics)

	// Trip the breaker; the open transition fires the state hook with
	// metrics attached, which must not panic.
	for i := 0; i < 5; i++ {
		client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	}

	result, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "not responding")
}

func TestUsageAccumulates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Message:         ChatMessage{Role: "assistant", Content: "ok"},
			Done:            true,
			PromptEvalCount: 7,
			EvalCount:       3,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(testConfig(server.URL), nil)
	for i := 0; i < 3; i++ {
		_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
		require.NoError(t, err)
	}

	tokens, requests := client.Usage()
	assert.Equal(t, 30, tokens)
	assert.Equal(t, 3, requests)
}

func TestGenerateEmbeddingViaLocalServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	embedding, err := GenerateEmbedding(context.Background(), testConfig(server.URL), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding)
}

func TestGenerateEmbeddingEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer server.Close()

	_, err := GenerateEmbedding(context.Background(), testConfig(server.URL), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding")
}

func TestGenerateEmbeddingUnknownProvider(t *testing.T) {
	cfg := testConfig("http://localhost:11434")
	cfg.EmbeddingsProvider = "openai"

	_, err := GenerateEmbedding(context.Background(), cfg, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embeddings provider")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 25, estimateTokens(string(make([]byte, 100))))
}
