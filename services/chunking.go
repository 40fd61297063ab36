package services

import (
	"strings"

	"local-rag-platform/models"

	"github.com/google/uuid"
)

// ChunkingService splits extracted text into overlapping chunks. The
// splitter walks a separator ladder, preferring paragraph breaks, then
// line breaks, then sentence ends, then spaces, and finally raw
// characters when nothing else fits.
type ChunkingService struct {
	maxChunkSize int
	overlap      int
	minChunkSize int
	separators   []string
}

// NewChunkingService creates a chunking service from configured limits.
// separators are tried in order; the last fallback is always "".
func NewChunkingService(maxChunkSize, overlap, minChunkSize int, separators []string) *ChunkingService {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	if overlap < 0 || overlap >= maxChunkSize {
		overlap = maxChunkSize / 5
	}
	if len(separators) == 0 {
		separators = []string{"\n\n", "\n", ".", " ", ""}
	}
	if separators[len(separators)-1] != "" {
		separators = append(separators, "")
	}

	return &ChunkingService{
		maxChunkSize: maxChunkSize,
		overlap:      overlap,
		minChunkSize: minChunkSize,
		separators:   separators,
	}
}

// ChunkText splits text into content chunks with position metadata.
func (cs *ChunkingService) ChunkText(text string) []models.ContentChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.ContentChunk{}
	}

	pieces := cs.split(text, cs.separators)
	pieces = cs.mergeWithOverlap(pieces)

	chunks := make([]models.ContentChunk, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		start := strings.Index(text[cursor:], piece)
		if start >= 0 {
			start += cursor
		} else {
			start = cursor
		}

		chunks = append(chunks, cs.buildChunk(piece, i, start))

		// Overlapping chunks share a prefix, so advance past the
		// non-overlapped head only.
		cursor = start + len(piece) - cs.overlap
		if cursor < start {
			cursor = start
		}
	}

	return chunks
}

// split recursively divides text so every piece fits maxChunkSize.
func (cs *ChunkingService) split(text string, separators []string) []string {
	if len(text) <= cs.maxChunkSize {
		return []string{text}
	}

	separator := separators[len(separators)-1]
	rest := separators
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if separator == "" {
		for start := 0; start < len(text); start += cs.maxChunkSize {
			end := start + cs.maxChunkSize
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[start:end])
		}
	} else {
		for _, part := range strings.Split(text, separator) {
			if strings.TrimSpace(part) == "" {
				continue
			}
			parts = append(parts, part+separator)
		}
	}

	var result []string
	for _, part := range parts {
		if len(part) <= cs.maxChunkSize {
			result = append(result, part)
		} else {
			result = append(result, cs.split(part, rest)...)
		}
	}
	return result
}

// mergeWithOverlap greedily packs small pieces into chunks near
// maxChunkSize, carrying overlap characters from each chunk's tail
// into the next one.
func (cs *ChunkingService) mergeWithOverlap(pieces []string) []string {
	var merged []string
	current := new(strings.Builder)

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk == "" {
			return
		}
		merged = append(merged, chunk)
		current.Reset()
		if cs.overlap > 0 && len(chunk) > cs.overlap {
			current.WriteString(chunk[len(chunk)-cs.overlap:])
		}
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > cs.maxChunkSize {
			flush()
		}
		current.WriteString(piece)
	}
	flush()

	// Fold an undersized trailing chunk into its predecessor.
	if cs.minChunkSize > 0 && len(merged) > 1 {
		last := merged[len(merged)-1]
		if len(last) < cs.minChunkSize {
			merged[len(merged)-2] = merged[len(merged)-2] + " " + last
			merged = merged[:len(merged)-1]
		}
	}

	return merged
}

func (cs *ChunkingService) buildChunk(text string, order, startIndex int) models.ContentChunk {
	words := strings.Fields(text)

	return models.ContentChunk{
		ChunkID:    uuid.NewString(),
		Text:       text,
		Order:      order,
		StartIndex: startIndex,
		EndIndex:   startIndex + len(text),
		CharCount:  len(text),
		WordCount:  len(words),
		Keywords:   extractKeywords(text, 5),
		TokenCount: len(text) / 4,
	}
}

// extractKeywords returns up to limit frequent non-stopword terms.
func extractKeywords(text string, limit int) []string {
	words := strings.Fields(strings.ToLower(text))

	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "is": true, "are": true, "was": true, "were": true,
		"this": true, "that": true, "it": true, "as": true, "be": true,
	}

	wordFreq := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if len(word) > 2 && !stopWords[word] {
			wordFreq[word]++
		}
	}

	keywords := make([]string, 0, limit)
	for word, freq := range wordFreq {
		if freq >= 2 && len(keywords) < limit {
			keywords = append(keywords, word)
		}
	}

	return keywords
}
