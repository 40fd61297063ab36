// Package watcher keeps a directory of documents in sync with the
// vector index. File events trigger ingestion tasks; a periodic rescan
// reconciles anything the events missed.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/internal/queue"
	"local-rag-platform/internal/vectorstore"
	"local-rag-platform/models"
	"local-rag-platform/services"
)

// Watcher observes the configured directory and schedules ingestion
// for new or changed files.
type Watcher struct {
	config *config.Config
	db     *mongo.Database
	client *asynq.Client
	store  vectorstore.Store
	ingest *services.IngestService
}

func New(cfg *config.Config, db *mongo.Database, client *asynq.Client,
	store vectorstore.Store, ingest *services.IngestService) *Watcher {
	return &Watcher{
		config: cfg,
		db:     db,
		client: client,
		store:  store,
		ingest: ingest,
	}
}

// Watch blocks on filesystem events until ctx is cancelled. Write
// events are debounced because editors emit several per save.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.config.WatchDir == "" {
		return fmt.Errorf("watch directory not configured")
	}
	if err := os.MkdirAll(w.config.WatchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch dir: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.config.WatchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.config.WatchDir, err)
	}

	logger.Info("Watching directory", "dir", w.config.WatchDir)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if isSupported(event.Name) {
					pending[event.Name] = time.Now()
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
				w.handleRemoved(ctx, event.Name)
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, seen := range pending {
				if now.Sub(seen) < 2*time.Second {
					continue
				}
				delete(pending, path)
				if err := w.enqueueFile(ctx, path); err != nil {
					logger.Error("Failed to enqueue watched file", "path", path, "error", err)
				}
			}
		}
	}
}

// ScanAndReconcile walks the watch directory and diffs file hashes
// against the index: changed files are re-ingested, files that
// disappeared are removed from the index.
func (w *Watcher) ScanAndReconcile(ctx context.Context) error {
	if w.config.WatchDir == "" {
		return nil
	}

	indexState, err := w.store.IndexState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index state: %w", err)
	}

	diskState := make(map[string]string)
	err = filepath.WalkDir(w.config.WatchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isSupported(path) {
			return err
		}

		hash, hashErr := hashFile(path)
		if hashErr != nil {
			logger.Warn("Failed to hash file", "path", path, "error", hashErr)
			return nil
		}
		diskState[path] = hash
		return nil
	})
	if err != nil {
		return fmt.Errorf("rescan walk failed: %w", err)
	}

	changed, removed := planReconcile(indexState, diskState, w.config.WatchDir)

	for _, path := range changed {
		logger.Info("Rescan found changed file", "path", path)
		if err := w.enqueueFile(ctx, path); err != nil {
			logger.Error("Failed to enqueue changed file", "path", path, "error", err)
		}
	}
	for _, path := range removed {
		logger.Info("Rescan removing deleted file from index", "path", path)
		w.handleRemoved(ctx, path)
	}

	return nil
}

// planReconcile diffs the on-disk state against the index. A file is
// changed when its hash differs from the indexed one or it was never
// indexed. Indexed sources under watchDir with no file behind them are
// removed; sources outside watchDir (uploads, crawls) are left alone.
func planReconcile(indexState, diskState map[string]string, watchDir string) (changed, removed []string) {
	for path, hash := range diskState {
		if indexState[path] != hash {
			changed = append(changed, path)
		}
	}

	for source := range indexState {
		if !strings.HasPrefix(source, watchDir) {
			continue
		}
		if _, onDisk := diskState[source]; !onDisk {
			removed = append(removed, source)
		}
	}

	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}

// enqueueFile upserts the document record and schedules processing.
func (w *Watcher) enqueueFile(ctx context.Context, path string) error {
	hash, err := hashFile(path)
	if err != nil {
		return err
	}

	docs := w.db.Collection("documents")
	filter := bson.M{"source": models.SourceWatcher, "source_ref": path}
	update := bson.M{
		"$set": bson.M{
			"file_hash":           hash,
			"status":              models.StatusPending,
			"progress":            0,
			"error_message":       "",
			"compression_enabled": w.config.ChunkCompression,
		},
		"$setOnInsert": bson.M{
			"source":        models.SourceWatcher,
			"source_ref":    path,
			"filename":      filepath.Base(path),
			"original_name": filepath.Base(path),
			"file_path":     path,
			"uploaded_at":   time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc models.Document
	if err := docs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return fmt.Errorf("failed to upsert document record: %w", err)
	}

	task, err := queue.NewDocumentProcessTask(doc.ID.Hex(), path)
	if err != nil {
		return err
	}
	if _, err := w.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.Info("Enqueued watched file", "path", path, "doc_id", doc.ID.Hex())
	return nil
}

func (w *Watcher) handleRemoved(ctx context.Context, path string) {
	if err := w.ingest.Remove(ctx, path); err != nil {
		logger.Warn("Failed to remove deleted file from index", "path", path, "error", err)
	}

	_, err := w.db.Collection("documents").DeleteOne(ctx,
		bson.M{"source": models.SourceWatcher, "source_ref": path})
	if err != nil {
		logger.Warn("Failed to delete document record", "path", path, "error", err)
	}
}

func isSupported(path string) bool {
	return services.SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
