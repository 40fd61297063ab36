// Package vectorstore wraps the vector index behind a small interface.
// The index itself is an external service (Chroma); an in-memory store
// backs index-less startup and tests.
package vectorstore

import "context"

// Metadata keys shared by every record in the index.
const (
	MetaSource   = "source"    // originating file path or URL
	MetaDocID    = "doc_id"    // registry document id
	MetaChunkNum = "chunk_num" // chunk order within the document
	MetaFileHash = "file_hash" // sha256 of the source content
)

// Record is one chunk going into the index.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]interface{}
}

// Result is a retrieved chunk with its similarity score (higher is closer).
type Result struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Score    float64
}

// Store is the vector index surface the rest of the service uses.
type Store interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, embedding []float32, topK int) ([]Result, error)
	DeleteBySource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
	// IndexState maps every indexed source to its content hash. The
	// watcher diffs this against the filesystem to decide what to redo.
	IndexState(ctx context.Context) (map[string]string, error)
}
