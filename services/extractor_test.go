package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local-rag-platform/internal/config"
)

var errFailedMethod = errors.New("method failed")

func newTestExtractor(t *testing.T) *ExtractorService {
	t.Helper()
	cfg := &config.Config{
		MaxFileSize:     10 << 20,
		ExtractCacheDir: t.TempDir(),
	}
	extractor, err := NewExtractorService(cfg)
	require.NoError(t, err)
	return extractor
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	extractor := newTestExtractor(t)

	text := "The quick brown fox jumps over the lazy dog. It ran far into the woods and never came back to the farm again."
	path := writeTestFile(t, "note.txt", text)

	result, err := extractor.ExtractText(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, text, result.Text)
	assert.Equal(t, "plaintext", result.Method)
	assert.Equal(t, 1, result.Pages)
	assert.False(t, result.CacheHit)
	assert.Greater(t, result.QualityScore, 0.5)
	assert.Equal(t, len(strings.Fields(text)), result.WordCount)
}

func TestExtractMarkdown(t *testing.T) {
	extractor := newTestExtractor(t)

	path := writeTestFile(t, "readme.md", "# Title\n\nSome body text about the system and how it works.")

	result, err := extractor.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", result.Method)
	assert.Contains(t, result.Text, "# Title")
}

func TestExtractEmptyFileFails(t *testing.T) {
	extractor := newTestExtractor(t)

	path := writeTestFile(t, "empty.txt", "   \n ")

	_, err := extractor.ExtractText(context.Background(), path)
	assert.Error(t, err)
}

func TestExtractUnsupportedType(t *testing.T) {
	extractor := newTestExtractor(t)

	path := writeTestFile(t, "binary.exe", "MZ binary content")

	_, err := extractor.ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestExtractRejectsOversizedFile(t *testing.T) {
	cfg := &config.Config{MaxFileSize: 16, ExtractCacheDir: t.TempDir()}
	extractor, err := NewExtractorService(cfg)
	require.NoError(t, err)

	path := writeTestFile(t, "big.txt", strings.Repeat("a", 100))

	_, err = extractor.ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestExtractUsesCacheOnSecondCall(t *testing.T) {
	extractor := newTestExtractor(t)

	path := writeTestFile(t, "cached.txt", "Repeated content that should be served from cache next time.")

	first, err := extractor.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := extractor.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
}

func TestExtractCacheKeyedByContent(t *testing.T) {
	cache, err := NewExtractCache(t.TempDir())
	require.NoError(t, err)

	result := &ExtractionResult{Text: "hello world", Method: "plaintext"}
	require.NoError(t, cache.Put([]byte("v1"), "doc.txt", result))

	got, ok := cache.Get([]byte("v1"), "doc.txt")
	require.True(t, ok)
	assert.Equal(t, "hello world", got.Text)

	// Different content misses even with the same filename.
	_, ok = cache.Get([]byte("v2"), "doc.txt")
	assert.False(t, ok)

	// Different filename misses even with the same content.
	_, ok = cache.Get([]byte("v1"), "other.txt")
	assert.False(t, ok)
}

func TestExtractCacheClear(t *testing.T) {
	cache, err := NewExtractCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cache.Put([]byte("x"), "a.txt", &ExtractionResult{Text: "a"}))
	require.NoError(t, cache.Clear())

	_, ok := cache.Get([]byte("x"), "a.txt")
	assert.False(t, ok)
}

func TestExtractWithFallbackAcceptsGoodResultImmediately(t *testing.T) {
	goodText := "The system processes documents in the background. Workers pick up jobs from the queue and report progress for each one."
	secondCalled := false

	methods := []extractionMethod{
		{name: "first", extract: func([]byte) (*ExtractionResult, error) {
			return &ExtractionResult{Text: goodText, Pages: 1}, nil
		}},
		{name: "second", extract: func([]byte) (*ExtractionResult, error) {
			secondCalled = true
			return &ExtractionResult{Text: goodText, Pages: 1}, nil
		}},
	}

	result, err := extractWithFallback(context.Background(), nil, methods)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Method)
	assert.GreaterOrEqual(t, result.QualityScore, qualityThreshold)
	assert.False(t, secondCalled, "good first result should short-circuit")
}

func TestExtractWithFallbackKeepsBestLowQualityResult(t *testing.T) {
	methods := []extractionMethod{
		{name: "garbled", extract: func([]byte) (*ExtractionResult, error) {
			return &ExtractionResult{Text: strings.Repeat("\x01\x02", 30), Pages: 1}, nil
		}},
		{name: "short", extract: func([]byte) (*ExtractionResult, error) {
			return &ExtractionResult{Text: "partial text only", Pages: 1}, nil
		}},
	}

	result, err := extractWithFallback(context.Background(), nil, methods)
	require.NoError(t, err)
	assert.Equal(t, "short", result.Method)
	assert.Less(t, result.QualityScore, qualityThreshold)
}

func TestExtractWithFallbackFallsThroughOnError(t *testing.T) {
	goodText := "The fallback method recovered this text. It reads cleanly and scores well above the acceptance threshold for extraction."

	methods := []extractionMethod{
		{name: "broken", extract: func([]byte) (*ExtractionResult, error) {
			return nil, errFailedMethod
		}},
		{name: "working", extract: func([]byte) (*ExtractionResult, error) {
			return &ExtractionResult{Text: goodText, Pages: 2}, nil
		}},
	}

	result, err := extractWithFallback(context.Background(), nil, methods)
	require.NoError(t, err)
	assert.Equal(t, "working", result.Method)
	assert.Equal(t, 2, result.Pages)
}

func TestExtractWithFallbackAllMethodsFail(t *testing.T) {
	methods := []extractionMethod{
		{name: "a", extract: func([]byte) (*ExtractionResult, error) { return nil, errFailedMethod }},
		{name: "b", extract: func([]byte) (*ExtractionResult, error) { return nil, errFailedMethod }},
	}

	_, err := extractWithFallback(context.Background(), nil, methods)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all extraction methods failed")
}

func TestEvaluateTextQuality(t *testing.T) {
	assert.Zero(t, evaluateTextQuality(""))
	assert.InDelta(t, 0.1, evaluateTextQuality("abc"), 1e-9)

	good := "The system processes documents in the background. Workers pick up jobs from the queue and report progress for each one."
	assert.Greater(t, evaluateTextQuality(good), 0.7)

	corrupted := strings.Repeat("\x01\x02", 50)
	assert.Less(t, evaluateTextQuality(corrupted), 0.3)
}
