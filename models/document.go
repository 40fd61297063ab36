package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is the registry record for anything ingested into the index:
// an uploaded file, a watched workspace file, or a crawled page set.
type Document struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Filename           string             `bson:"filename" json:"filename"`
	OriginalName       string             `bson:"original_name" json:"original_name"`
	FilePath           string             `bson:"file_path" json:"file_path"` // Storage path
	FileHash           string             `bson:"file_hash" json:"file_hash"` // For deduplication
	Source             string             `bson:"source" json:"source"`       // upload, watcher, crawl
	SourceRef          string             `bson:"source_ref,omitempty" json:"source_ref,omitempty"`
	ContentChunks      []ContentChunk     `bson:"content_chunks,omitempty" json:"content_chunks,omitempty"`
	CompressionEnabled bool               `bson:"compression_enabled" json:"compression_enabled"`
	Summary            string             `bson:"summary,omitempty" json:"summary,omitempty"`
	Status             string             `bson:"status" json:"status"` // pending, processing, completed, failed
	Progress           int                `bson:"progress" json:"progress"`
	ErrorMessage       string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt         time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt        *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Metadata           DocumentMetadata   `bson:"metadata" json:"metadata"`
}

// ContentChunk represents a text chunk from a document
type ContentChunk struct {
	ChunkID     string   `bson:"chunk_id" json:"chunk_id"`
	Text        string   `bson:"text" json:"text"`
	Compressed  bool     `bson:"compressed,omitempty" json:"compressed,omitempty"`
	Compression string   `bson:"compression,omitempty" json:"compression,omitempty"`
	Order       int      `bson:"order" json:"order"`
	StartIndex  int      `bson:"start_index,omitempty" json:"start_index,omitempty"`
	EndIndex    int      `bson:"end_index,omitempty" json:"end_index,omitempty"`
	CharCount   int      `bson:"char_count,omitempty" json:"char_count,omitempty"`
	WordCount   int      `bson:"word_count,omitempty" json:"word_count,omitempty"`
	Page        int      `bson:"page,omitempty" json:"page,omitempty"`
	Keywords    []string `bson:"keywords,omitempty" json:"keywords,omitempty"`
	TokenCount  int      `bson:"token_count,omitempty" json:"token_count,omitempty"`
}

// DocumentMetadata contains processing metadata
type DocumentMetadata struct {
	Size             int64         `bson:"size" json:"size"`
	Pages            int           `bson:"pages" json:"pages"`
	ProcessingTime   time.Duration `bson:"processing_time" json:"processing_time"`
	ExtractionMethod string        `bson:"extraction_method" json:"extraction_method"`
	QualityScore     float64       `bson:"quality_score" json:"quality_score"`
	WordCount        int           `bson:"word_count" json:"word_count"`
	CharacterCount   int           `bson:"character_count" json:"character_count"`
	CacheHit         bool          `bson:"cache_hit,omitempty" json:"cache_hit,omitempty"`
}

// UploadResponse represents the response after successful upload
type UploadResponse struct {
	ID         string           `json:"id"`
	Filename   string           `json:"filename"`
	Status     string           `json:"status"`
	ChunkCount int              `json:"chunk_count,omitempty"`
	Metadata   DocumentMetadata `json:"metadata"`
	Message    string           `json:"message"`
	TaskID     string           `json:"task_id,omitempty"` // For async processing
}

// Processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document source constants
const (
	SourceUpload  = "upload"
	SourceWatcher = "watcher"
	SourceCrawl   = "crawl"
)
