package services

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"local-rag-platform/internal/logger"
)

// ExtractCache persists extraction results on disk, keyed by an md5 of
// the file content plus its name. Re-ingesting an unchanged file reads
// the cached JSON instead of re-parsing the document.
type ExtractCache struct {
	dir string
}

func NewExtractCache(dir string) (*ExtractCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extract cache dir: %w", err)
	}
	return &ExtractCache{dir: dir}, nil
}

func (c *ExtractCache) key(content []byte, filename string) string {
	h := md5.New()
	h.Write(content)
	h.Write([]byte(filename))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ExtractCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns a cached extraction result, or false on miss.
func (c *ExtractCache) Get(content []byte, filename string) (*ExtractionResult, bool) {
	data, err := os.ReadFile(c.path(c.key(content, filename)))
	if err != nil {
		return nil, false
	}

	var result ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn("Corrupt extract cache entry, ignoring", "file", filename, "error", err)
		return nil, false
	}
	return &result, true
}

// Put stores an extraction result via an atomic rename.
func (c *ExtractCache) Put(content []byte, filename string, result *ExtractionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction result: %w", err)
	}

	target := c.path(c.key(content, filename))
	tmp, err := os.CreateTemp(c.dir, "extract-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}

// Clear removes every cached entry.
func (c *ExtractCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
	return nil
}
