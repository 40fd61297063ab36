package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAddAndCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Add(ctx, []Record{
		{ID: "a-0", Text: "first", Embedding: []float32{1, 0, 0}},
		{ID: "a-1", Text: "second", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStoreRejectsEmptyEmbedding(t *testing.T) {
	store := NewMemoryStore()

	err := store.Add(context.Background(), []Record{{ID: "bad", Text: "no vector"}})
	assert.Error(t, err)
}

func TestMemoryStoreQueryRanksByCosine(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Record{
		{ID: "exact", Text: "exact match", Embedding: []float32{1, 0, 0}},
		{ID: "close", Text: "close match", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Text: "unrelated", Embedding: []float32{0, 0, 1}},
	}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryStoreQueryTopKLargerThanIndex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Record{
		{ID: "only", Text: "only one", Embedding: []float32{1, 1}},
	}))

	results, err := store.Query(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryStoreQueryInvalidTopK(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Query(context.Background(), []float32{1}, 0)
	assert.Error(t, err)
}

func TestMemoryStoreQuerySkipsDimensionMismatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Record{
		{ID: "dim3", Text: "three dims", Embedding: []float32{1, 0, 0}},
		{ID: "dim2", Text: "two dims", Embedding: []float32{1, 0}},
	}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dim3", results[0].ID)
}

func TestMemoryStoreDeleteBySource(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Record{
		{ID: "a-0", Text: "keep", Embedding: []float32{1, 0}, Metadata: map[string]interface{}{MetaSource: "a.txt", MetaFileHash: "h1"}},
		{ID: "b-0", Text: "drop", Embedding: []float32{0, 1}, Metadata: map[string]interface{}{MetaSource: "b.txt", MetaFileHash: "h2"}},
		{ID: "b-1", Text: "drop too", Embedding: []float32{0, 1}, Metadata: map[string]interface{}{MetaSource: "b.txt", MetaFileHash: "h2"}},
	}))

	require.NoError(t, store.DeleteBySource(ctx, "b.txt"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	state, err := store.IndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": "h1"}, state)
}

func TestCosineSimilarity(t *testing.T) {
	score, err := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	score, err = cosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, score)

	_, err = cosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}
