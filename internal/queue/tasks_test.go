package queue

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-rag-platform/models"
	"local-rag-platform/utils"
)

func TestNewDocumentProcessTask(t *testing.T) {
	task, err := NewDocumentProcessTask("abc123", "/data/files/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, TaskProcessDocument, task.Type())

	var payload DocumentProcessPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "abc123", payload.DocID)
	assert.Equal(t, "/data/files/doc.pdf", payload.FilePath)
}

func TestNewCrawlProcessTask(t *testing.T) {
	task, err := NewCrawlProcessTask("crawl-1")
	require.NoError(t, err)

	assert.Equal(t, TaskProcessCrawl, task.Type())

	var payload CrawlProcessPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "crawl-1", payload.CrawlID)
}

func TestCompressChunksRoundTrip(t *testing.T) {
	text := "This chunk is long enough to benefit from compression. " +
		strings.Repeat("It repeats itself over and over again. ", 20)

	chunks := []models.ContentChunk{{ChunkID: "c1", Text: text, Order: 0}}

	compressed, err := compressChunks(chunks)
	require.NoError(t, err)
	require.Len(t, compressed, 1)
	assert.True(t, compressed[0].Compressed)
	assert.NotEqual(t, text, compressed[0].Text)

	raw, err := base64.StdEncoding.DecodeString(compressed[0].Text)
	require.NoError(t, err)

	restored, err := utils.DecompressText(raw, utils.CompressionAlgorithm(compressed[0].Compression))
	require.NoError(t, err)
	assert.Equal(t, text, restored)
}
