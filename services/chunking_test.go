package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextEmpty(t *testing.T) {
	cs := NewChunkingService(1000, 200, 100, nil)

	chunks := cs.ChunkText("")
	assert.Empty(t, chunks)

	chunks = cs.ChunkText("   \n\n  ")
	assert.Empty(t, chunks)
}

func TestChunkTextShortTextSingleChunk(t *testing.T) {
	cs := NewChunkingService(1000, 200, 100, nil)

	text := "A short paragraph that fits comfortably in one chunk."
	chunks := cs.ChunkText(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Order)
	assert.Equal(t, len(text), chunks[0].CharCount)
	assert.NotEmpty(t, chunks[0].ChunkID)
}

func TestChunkTextRespectsMaxSize(t *testing.T) {
	cs := NewChunkingService(200, 40, 20, nil)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Sentence number with several words inside it. ")
	}

	chunks := cs.ChunkText(sb.String())
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		// Overlap can push a chunk slightly past the limit.
		assert.LessOrEqual(t, chunk.CharCount, 200+40)
	}
}

func TestChunkTextOrderIsSequential(t *testing.T) {
	cs := NewChunkingService(100, 20, 10, nil)

	text := strings.Repeat("Paragraph one has content.\n\n", 20)
	chunks := cs.ChunkText(text)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Order)
	}
}

func TestChunkTextOverlapCarriesTail(t *testing.T) {
	cs := NewChunkingService(100, 30, 10, nil)

	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 20)
	chunks := cs.ChunkText(text)
	require.Greater(t, len(chunks), 1)

	// Each successive chunk starts with text present near the end of
	// the previous one.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		head := chunks[i].Text
		if len(head) > 20 {
			head = head[:20]
		}
		assert.Contains(t, prev, strings.TrimSpace(head[:10]))
	}
}

func TestChunkTextPrefersParagraphBoundaries(t *testing.T) {
	cs := NewChunkingService(60, 0, 0, []string{"\n\n", "\n", ".", " ", ""})

	text := "First paragraph stays whole.\n\nSecond paragraph stays whole too.\n\nThird one as well."
	chunks := cs.ChunkText(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, chunks[0].Text, "First paragraph")
	assert.NotContains(t, chunks[0].Text, "Third one")
}

func TestChunkTextHardSplitWithoutSeparators(t *testing.T) {
	cs := NewChunkingService(50, 0, 0, []string{""})

	text := strings.Repeat("x", 173)
	chunks := cs.ChunkText(text)

	require.Equal(t, 4, len(chunks))
	total := 0
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.CharCount, 50)
		total += chunk.CharCount
	}
	assert.Equal(t, 173, total)
}

func TestChunkTextFoldsTinyTrailingChunk(t *testing.T) {
	cs := NewChunkingService(100, 0, 40, []string{" ", ""})

	text := strings.Repeat("word ", 25) + "tail"
	chunks := cs.ChunkText(text)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.GreaterOrEqual(t, last.CharCount, 40)
}

func TestExtractKeywords(t *testing.T) {
	text := "kubernetes cluster kubernetes deployment cluster scaling kubernetes"
	keywords := extractKeywords(text, 5)

	assert.Contains(t, keywords, "kubernetes")
	assert.Contains(t, keywords, "cluster")
	assert.NotContains(t, keywords, "scaling") // appears once
}

func TestNewChunkingServiceDefaults(t *testing.T) {
	cs := NewChunkingService(0, -1, 0, nil)

	assert.Equal(t, 1000, cs.maxChunkSize)
	assert.Equal(t, 200, cs.overlap)
	assert.Equal(t, "", cs.separators[len(cs.separators)-1])
}
