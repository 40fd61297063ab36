package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"local-rag-platform/internal/config"
)

// ChromaStore implements Store against a Chroma collection (v2 API).
type ChromaStore struct {
	client     chromago.Client
	collection chromago.Collection
}

// NewChromaStore connects to Chroma and gets or creates the collection.
func NewChromaStore(ctx context.Context, cfg *config.Config) (*ChromaStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		cfg.ChromaCollection,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("created_by", "local-rag-platform"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", cfg.ChromaCollection, err)
	}

	log.Printf("Connected to chroma collection %q at %s", cfg.ChromaCollection, cfg.ChromaURL)

	return &ChromaStore{client: client, collection: collection}, nil
}

// Close releases the underlying client resources.
func (s *ChromaStore) Close() error {
	return s.client.Close()
}

func (s *ChromaStore) Add(ctx context.Context, records []Record) error {
	for _, rec := range records {
		embedding := embeddings.NewEmbeddingFromFloat32(rec.Embedding)
		metadata := buildMetadata(rec.Metadata)

		err := s.collection.Add(ctx,
			chromago.WithIDs(chromago.DocumentID(rec.ID)),
			chromago.WithTexts(rec.Text),
			chromago.WithEmbeddings(embedding),
			chromago.WithMetadatas(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to add record %s to chroma: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, embedding []float32, topK int) ([]Result, error) {
	queryEmbedding := embeddings.NewEmbeddingFromFloat32(embedding)

	results, err := s.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(queryEmbedding),
		chromago.WithNResults(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chroma: %w", err)
	}

	var out []Result
	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()

	if len(documentGroups) == 0 {
		return out, nil
	}

	for i, doc := range documentGroups[0] {
		if doc.ContentString() == "" {
			continue
		}

		res := Result{Text: doc.ContentString()}

		if len(idGroups) > 0 && i < len(idGroups[0]) {
			res.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			res.Metadata = metadataToMap(metadataGroups[0][i])
		}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			// Chroma reports distances; flip to a similarity-style score
			// so callers can always sort descending.
			res.Score = 1.0 - float64(distanceGroups[0][i])
		}

		out = append(out, res)
	}

	return out, nil
}

func (s *ChromaStore) DeleteBySource(ctx context.Context, source string) error {
	where := chromago.EqString(MetaSource, source)
	return s.collection.Delete(ctx, chromago.WithWhereDelete(where))
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection: %w", err)
	}
	return int(count), nil
}

func (s *ChromaStore) IndexState(ctx context.Context) (map[string]string, error) {
	state := make(map[string]string)

	results, err := s.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection contents: %w", err)
	}

	for _, meta := range results.GetMetadatas() {
		if meta == nil {
			continue
		}
		metaMap := metadataToMap(meta)
		source, ok := metaMap[MetaSource].(string)
		if !ok {
			continue
		}
		hash, ok := metaMap[MetaFileHash].(string)
		if !ok {
			continue
		}
		if _, exists := state[source]; !exists {
			state[source] = hash
		}
	}

	return state, nil
}

// buildMetadata converts a plain map into chroma document metadata.
func buildMetadata(meta map[string]interface{}) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(key, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(key, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(key, v))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(key, v))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(key, v))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(key, fmt.Sprintf("%v", v)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// metadataToMap converts chroma document metadata back to a plain map.
// The metadata type has no public accessor for its values; round-trip
// through JSON like the v2 API expects.
func metadataToMap(meta chromago.DocumentMetadata) map[string]interface{} {
	out := make(map[string]interface{})
	if meta == nil {
		return out
	}

	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		log.Printf("WARN: could not marshal chroma metadata: %v", err)
		return out
	}
	if err := json.Unmarshal(jsonBytes, &out); err != nil {
		log.Printf("WARN: could not unmarshal chroma metadata: %v", err)
		return map[string]interface{}{}
	}
	return out
}
