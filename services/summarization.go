package services

import (
	"context"
	"fmt"
	"strings"

	"local-rag-platform/internal/ai"
)

// SummarizationService produces document summaries with the chat model.
type SummarizationService struct {
	ollama *ai.OllamaClient
	cache  *CacheService
}

func NewSummarizationService(ollama *ai.OllamaClient, cache *CacheService) *SummarizationService {
	return &SummarizationService{ollama: ollama, cache: cache}
}

// maxSummaryInput caps how much document text goes into the prompt.
const maxSummaryInput = 8000

// SummarizeDocument returns a summary for the document text, served
// from cache when the document was summarized before.
func (ss *SummarizationService) SummarizeDocument(ctx context.Context, docID, text string) (string, error) {
	if ss.cache != nil && docID != "" {
		if summary, ok := ss.cache.GetSummary(ctx, docID); ok {
			return summary, nil
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("nothing to summarize")
	}

	// Short documents are their own summary.
	if len(text)/4 < 200 {
		return text, nil
	}

	prompt := buildSummarizationPrompt(text)
	result, err := ss.ollama.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	summary := strings.TrimSpace(result.Text)
	if summary == "" {
		return "", fmt.Errorf("model returned empty summary")
	}

	if ss.cache != nil && docID != "" {
		ss.cache.SetSummary(ctx, docID, summary)
	}

	return summary, nil
}

func buildSummarizationPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following document concisely, preserving:
1. Key information and facts
2. Important concepts
3. Names, numbers, and technical terms

Document:
%s

Provide a comprehensive yet concise summary:`, truncateText(text, maxSummaryInput))
}

func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
