package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
)

// ExtractorService turns uploaded or watched files into plain text.
// PDF extraction can fall back between methods; spreadsheets and plain
// text formats have a single path each.
type ExtractorService struct {
	config *config.Config
	cache  *ExtractCache
}

func NewExtractorService(cfg *config.Config) (*ExtractorService, error) {
	cache, err := NewExtractCache(cfg.ExtractCacheDir)
	if err != nil {
		return nil, err
	}
	return &ExtractorService{config: cfg, cache: cache}, nil
}

// ExtractionResult is the extracted text plus quality metadata.
type ExtractionResult struct {
	Text           string        `json:"text"`
	Pages          int           `json:"pages"`
	Method         string        `json:"method"`
	QualityScore   float64       `json:"quality_score"`
	ProcessingTime time.Duration `json:"processing_time"`
	WordCount      int           `json:"word_count"`
	CharacterCount int           `json:"character_count"`
	CacheHit       bool          `json:"cache_hit"`
}

// SupportedExtensions lists the file types the pipeline accepts.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".xlsx": true,
	".csv":  true,
}

// ExtractText extracts text from a file, consulting the disk cache
// first so re-ingesting an unchanged file skips the expensive parse.
func (e *ExtractorService) ExtractText(ctx context.Context, filePath string) (*ExtractionResult, error) {
	start := time.Now()

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(content) > int(e.config.MaxFileSize) {
		return nil, fmt.Errorf("file exceeds size limit of %d bytes", e.config.MaxFileSize)
	}

	if cached, ok := e.cache.Get(content, filepath.Base(filePath)); ok {
		logger.Debug("Extraction cache hit", "file", filepath.Base(filePath))
		cached.CacheHit = true
		cached.ProcessingTime = time.Since(start)
		return cached, nil
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	var result *ExtractionResult

	switch ext {
	case ".pdf":
		result, err = e.extractPDF(ctx, content)
	case ".txt", ".md":
		result, err = e.extractPlainText(content)
	case ".xlsx":
		result, err = e.extractSpreadsheet(content)
	case ".csv":
		result, err = e.extractPlainText(content)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	if err != nil {
		return nil, err
	}

	result.ProcessingTime = time.Since(start)
	result.QualityScore = evaluateTextQuality(result.Text)
	result.WordCount = len(strings.Fields(result.Text))
	result.CharacterCount = len(result.Text)

	if err := e.cache.Put(content, filepath.Base(filePath), result); err != nil {
		logger.Warn("Failed to write extraction cache", "error", err)
	}

	return result, nil
}

// extractionMethod is one strategy for pulling text out of a file.
type extractionMethod struct {
	name    string
	extract func(content []byte) (*ExtractionResult, error)
}

// qualityThreshold is the score above which a result is accepted
// without trying further methods.
const qualityThreshold = 0.7

func (e *ExtractorService) extractPDF(ctx context.Context, content []byte) (*ExtractionResult, error) {
	methods := []extractionMethod{
		{name: "go-pdf", extract: e.extractPDFPlainText},
		{name: "go-pdf-rows", extract: e.extractPDFRows},
	}
	return extractWithFallback(ctx, content, methods)
}

// extractWithFallback runs methods in order, scoring each result. The
// first result above the quality threshold wins; otherwise the best
// scoring result is kept. Only when every method fails is an error
// returned.
func extractWithFallback(ctx context.Context, content []byte, methods []extractionMethod) (*ExtractionResult, error) {
	var best *ExtractionResult
	var lastErr error

	for _, method := range methods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := method.extract(content)
		if err != nil {
			logger.Warn("Extraction method failed", "method", method.name, "error", err)
			lastErr = err
			continue
		}

		result.Method = method.name
		result.QualityScore = evaluateTextQuality(result.Text)

		if result.QualityScore >= qualityThreshold {
			return result, nil
		}
		if best == nil || result.QualityScore > best.QualityScore {
			best = result
		}
	}

	if best != nil {
		return best, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all extraction methods failed: %w", lastErr)
	}
	return nil, fmt.Errorf("all extraction methods failed")
}

func (e *ExtractorService) extractPDFPlainText(content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract pdf page", "page", i, "error", err)
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text extracted from pdf")
	}

	return &ExtractionResult{Text: extracted, Pages: pages}, nil
}

// extractPDFRows reassembles text row by row. Some PDFs with unusual
// font encodings come out garbled via GetPlainText but readable here.
func (e *ExtractorService) extractPDFRows(content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			logger.Warn("Failed to extract pdf rows", "page", i, "error", err)
			continue
		}

		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			textBuilder.WriteString(strings.Join(words, " "))
			textBuilder.WriteString("\n")
		}
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text extracted from pdf")
	}

	return &ExtractionResult{Text: extracted, Pages: pages}, nil
}

func (e *ExtractorService) extractPlainText(content []byte) (*ExtractionResult, error) {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file is empty")
	}
	return &ExtractionResult{Text: text, Pages: 1, Method: "plaintext"}, nil
}

// extractSpreadsheet flattens every sheet into tab-separated rows so
// the chunker sees cell values in reading order.
func (e *ExtractorService) extractSpreadsheet(content []byte) (*ExtractionResult, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer file.Close()

	var textBuilder strings.Builder
	sheets := file.GetSheetList()

	for _, sheet := range sheets {
		rows, err := file.GetRows(sheet)
		if err != nil {
			logger.Warn("Failed to read sheet", "sheet", sheet, "error", err)
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(sheet)
		textBuilder.WriteString("\n")

		for _, row := range rows {
			textBuilder.WriteString(strings.Join(row, "\t"))
			textBuilder.WriteString("\n")
		}
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no cells extracted from spreadsheet")
	}

	return &ExtractionResult{Text: extracted, Pages: len(sheets), Method: "excelize"}, nil
}

var goodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+\b`),
	regexp.MustCompile(`[.!?]\s+[A-Z]`),
	regexp.MustCompile(`\b(the|and|or|of|to|in|for|with|on|at|by|from)\b`),
}

// evaluateTextQuality scores extracted text between 0 and 1. Low
// scores usually mean a scanned or corrupted source.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0.0
	}
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		default:
			corrupted++
		}
	}

	total := len([]rune(text))
	alphanumericRatio := float64(alphanumeric) / float64(total)
	printableRatio := float64(printable) / float64(total)
	corruptedRatio := float64(corrupted) / float64(total)

	score := printableRatio * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= corruptedRatio * 2.0

	if len(text) > 100 {
		score += 0.1
	}

	matches := 0
	for _, pattern := range goodPatterns {
		if pattern.MatchString(text) {
			matches++
		}
	}
	if matches >= 2 {
		score += 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
