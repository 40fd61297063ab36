package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/vectorstore"
)

// fakeEmbedServer derives a deterministic embedding from the prompt so
// chunks from different texts stay distinguishable.
func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embedding := []float32{0, 0}
		if strings.Contains(req.Prompt, "alpha") {
			embedding = []float32{1, 0}
		} else if strings.Contains(req.Prompt, "beta") {
			embedding = []float32{0, 1}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": embedding})
	}))
}

func newTestIngest(t *testing.T, serverURL string, store vectorstore.Store) *IngestService {
	t.Helper()

	cfg := &config.Config{
		OllamaBaseURL: serverURL,
		EmbedModel:    "nomic-embed-text:v1.5",
		OllamaTimeout: 5,
		MaxChunkSize:  1000,
		ChunkOverlap:  200,
		MinChunkSize:  10,
		Separators:    []string{"\n\n", "\n", " ", ""},
	}
	return NewIngestService(cfg, store, nil, nil)
}

// Two documents with the same display filename must not share a source
// key: indexing the second one replaces by source and would silently
// erase the first one's chunks.
func TestIndexTextDistinctSourcesCoexist(t *testing.T) {
	server := fakeEmbedServer(t)
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	ingest := newTestIngest(t, server.URL, store)

	_, err := ingest.IndexText(context.Background(), "doc-a", "./storage/uuid-a.pdf", "hash-a",
		"alpha content about the first report")
	require.NoError(t, err)

	_, err = ingest.IndexText(context.Background(), "doc-b", "./storage/uuid-b.pdf", "hash-b",
		"beta content about the second report")
	require.NoError(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Query(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "alpha")
	assert.Equal(t, "./storage/uuid-a.pdf", results[0].Metadata[vectorstore.MetaSource])
}

func TestIndexTextReplacesSameSource(t *testing.T) {
	server := fakeEmbedServer(t)
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	ingest := newTestIngest(t, server.URL, store)

	_, err := ingest.IndexText(context.Background(), "doc-a", "./storage/uuid-a.pdf", "hash-1",
		"alpha first version")
	require.NoError(t, err)

	_, err = ingest.IndexText(context.Background(), "doc-a", "./storage/uuid-a.pdf", "hash-2",
		"beta second version")
	require.NoError(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Query(context.Background(), []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "beta")
}

func TestIndexTextRejectsEmptyText(t *testing.T) {
	server := fakeEmbedServer(t)
	defer server.Close()

	ingest := newTestIngest(t, server.URL, vectorstore.NewMemoryStore())

	_, err := ingest.IndexText(context.Background(), "doc-a", "source", "hash", "   ")
	assert.Error(t, err)
}

func TestRemoveClearsSource(t *testing.T) {
	server := fakeEmbedServer(t)
	defer server.Close()

	store := vectorstore.NewMemoryStore()
	ingest := newTestIngest(t, server.URL, store)

	_, err := ingest.IndexText(context.Background(), "doc-a", "./storage/uuid-a.pdf", "hash-a",
		"alpha content")
	require.NoError(t, err)

	require.NoError(t, ingest.Remove(context.Background(), "./storage/uuid-a.pdf"))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
