package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
)

// ExportRequest narrows which conversations get exported.
type ExportRequest struct {
	Format    string    `json:"format" binding:"required,oneof=json excel"`
	SessionID string    `json:"session_id,omitempty"`
	DateFrom  time.Time `json:"date_from,omitempty"`
	DateTo    time.Time `json:"date_to,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// ExportData is the structured payload written to the export file.
type ExportData struct {
	ExportDate    time.Time        `json:"export_date"`
	TotalMessages int              `json:"total_messages"`
	TotalTokens   int              `json:"total_tokens"`
	SessionID     string           `json:"session_id,omitempty"`
	Messages      []models.Message `json:"messages"`
}

// ExportService exports conversation history as JSON or a spreadsheet.
type ExportService struct {
	messagesColl *mongo.Collection
}

func NewExportService(messagesColl *mongo.Collection) *ExportService {
	return &ExportService{messagesColl: messagesColl}
}

// Export fetches matching messages and renders them in the requested
// format. Returns the file bytes and a content type.
func (es *ExportService) Export(ctx context.Context, req *ExportRequest) ([]byte, string, error) {
	filter := bson.M{}
	if req.SessionID != "" {
		filter["session_id"] = req.SessionID
	}
	if !req.DateFrom.IsZero() || !req.DateTo.IsZero() {
		dateFilter := bson.M{}
		if !req.DateFrom.IsZero() {
			dateFilter["$gte"] = req.DateFrom
		}
		if !req.DateTo.IsZero() {
			dateFilter["$lte"] = req.DateTo
		}
		filter["timestamp"] = dateFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if req.Limit > 0 {
		opts.SetLimit(int64(req.Limit))
	}

	cursor, err := es.messagesColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, "", fmt.Errorf("failed to decode messages: %w", err)
	}

	totalTokens := 0
	for _, msg := range messages {
		totalTokens += msg.TokensUsed
	}

	data := &ExportData{
		ExportDate:    time.Now(),
		TotalMessages: len(messages),
		TotalTokens:   totalTokens,
		SessionID:     req.SessionID,
		Messages:      messages,
	}

	switch req.Format {
	case "json":
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal export: %w", err)
		}
		return payload, "application/json", nil

	case "excel":
		payload, err := es.renderExcel(data)
		if err != nil {
			return nil, "", err
		}
		return payload, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil

	default:
		return nil, "", fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (es *ExportService) renderExcel(data *ExportData) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close export workbook", "error", err)
		}
	}()

	sheetName := "Conversations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Session", "Question", "Answer", "Sources", "Tokens", "Cache Hit", "Timestamp"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, msg := range data.Messages {
		row := rowIdx + 2

		sources := make([]string, 0, len(msg.Sources))
		for _, src := range msg.Sources {
			sources = append(sources, src.Source)
		}
		sourcesJSON, _ := json.Marshal(sources)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), msg.SessionID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), msg.Question)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), msg.Answer)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), string(sourcesJSON))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), msg.TokensUsed)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), msg.CacheHit)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), msg.Timestamp.Format("2006-01-02 15:04:05"))
	}

	for i := range headers {
		col := fmt.Sprintf("%c", 'A'+i)
		f.SetColWidth(sheetName, col, col, 20)
	}

	// Summary sheet with the export totals.
	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err == nil {
		rows := [][]interface{}{
			{"Export Date", data.ExportDate.Format("2006-01-02 15:04:05")},
			{"Total Messages", data.TotalMessages},
			{"Total Tokens", data.TotalTokens},
			{"Session", data.SessionID},
		}
		for i, row := range rows {
			for j, cell := range row {
				f.SetCellValue(summarySheet, fmt.Sprintf("%c%d", 'A'+j, i+1), cell)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
