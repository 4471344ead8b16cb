package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"coremind-platform/internal/ai"
	"coremind-platform/internal/logger"
)

// ErrIndex wraps failures of the underlying vector store.
var ErrIndex = errors.New("vector index error")

// Hit is one search result. Distance is cosine distance: lower is closer.
type Hit struct {
	ID         string
	Collection string
	Content    string
	Metadata   map[string]string
	Distance   float64
}

// Stats describes one collection.
type Stats struct {
	CollectionName string
	TotalDocuments int
}

// Store is a persistent nearest-neighbor index over one named collection.
// A collection is bound to exactly one embedding model; reopening a name
// reopens the same collection (get-or-create). Reads are safe for
// concurrent use; writes to one collection are expected to be sequential.
type Store struct {
	name     string
	coll     *chromem.Collection
	db       *chromem.DB
	embedder ai.Embedder
}

// OpenDB opens (or creates) the persistent vector database directory
// shared by all collections.
func OpenDB(persistDir string) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(persistDir, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIndex, persistDir, err)
	}
	return db, nil
}

// NewStore opens the named collection, creating it if absent. The
// embedding model is recorded in collection metadata so a model switch
// on an existing collection is detectable.
func NewStore(db *chromem.DB, name string, embedder ai.Embedder) (*Store, error) {
	coll, err := db.GetOrCreateCollection(name, map[string]string{
		"space":           "cosine",
		"embedding_model": embedder.Model(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", ErrIndex, name, err)
	}

	return &Store{name: name, coll: coll, db: db, embedder: embedder}, nil
}

// Add embeds all chunks in one batch call and inserts them. Either all
// chunks are indexed or an error is returned. Returns the generated ids.
func (s *Store) Add(ctx context.Context, chunks []Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	vectors, err := s.embedder.EmbedMany(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	ids := make([]string, len(chunks))
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}

	if err := s.coll.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("%w: add to %s: %v", ErrIndex, s.name, err)
	}

	logger.Info("documents added to vector store", "collection", s.name, "count", len(chunks))
	return ids, nil
}

// Search embeds the query once and returns at most topK hits ordered by
// ascending cosine distance, optionally restricted by a metadata filter.
// An empty result is valid, not an error.
func (s *Store) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Hit, error) {
	count := s.coll.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.coll.QueryEmbedding(ctx, vec, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrIndex, s.name, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:         r.ID,
			Collection: s.name,
			Content:    r.Content,
			Metadata:   r.Metadata,
			// chromem reports cosine similarity; callers rank by distance.
			Distance: float64(1 - r.Similarity),
		}
	}

	logger.Debug("vector search complete", "collection", s.name, "hits", len(hits))
	return hits, nil
}

// DeleteByIDs removes documents by id. Deleting absent ids is not an error.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.coll.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: delete from %s: %v", ErrIndex, s.name, err)
	}
	return nil
}

// DeleteCollection drops the whole collection. Idempotent.
func (s *Store) DeleteCollection() error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", ErrIndex, s.name, err)
	}
	return nil
}

// Stats returns the collection name and document count.
func (s *Store) Stats() Stats {
	return Stats{CollectionName: s.name, TotalDocuments: s.coll.Count()}
}

// Name returns the collection name.
func (s *Store) Name() string { return s.name }
