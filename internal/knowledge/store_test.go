package knowledge

import (
	"context"
	"fmt"
	"testing"
)

// fakeEmbedder returns fixed vectors per known text so similarity
// ordering in tests is deterministic.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Model() string { return "fake-embedder" }

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 1, 1, 1}, nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestStore(t *testing.T, emb *fakeEmbedder) *Store {
	t.Helper()

	db, err := OpenDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(db, "test-collection", emb)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestSearchEmptyCollection(t *testing.T) {
	store := newTestStore(t, &fakeEmbedder{})

	hits, err := store.Search(context.Background(), "anything", 3, nil)
	if err != nil {
		t.Fatalf("empty collection search must not fail: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestAddAndSearchRanksByDistance(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"apples are red":    {1, 0, 0, 0},
		"bananas are long":  {0, 1, 0, 0},
		"cherries are tart": {0, 0, 1, 0},
		"tell me of apples": {1, 0, 0, 0},
	}}
	store := newTestStore(t, emb)

	ids, err := store.Add(context.Background(), []Chunk{
		{Content: "apples are red", Metadata: map[string]string{"title": "fruit"}},
		{Content: "bananas are long", Metadata: map[string]string{"title": "fruit"}},
		{Content: "cherries are tart", Metadata: map[string]string{"title": "fruit"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}

	hits, err := store.Search(context.Background(), "tell me of apples", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "apples are red" {
		t.Errorf("closest hit should be the identical vector, got %q", hits[0].Content)
	}
	if hits[0].Distance > 0.001 {
		t.Errorf("identical vectors should have near-zero distance, got %f", hits[0].Distance)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Errorf("hits not ordered by ascending distance: %f > %f", hits[0].Distance, hits[1].Distance)
	}
	if hits[0].Metadata["title"] != "fruit" {
		t.Errorf("metadata not round-tripped: %v", hits[0].Metadata)
	}
}

func TestSearchClampsTopK(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newTestStore(t, emb)

	if _, err := store.Add(context.Background(), []Chunk{
		{Content: "only document"},
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search(context.Background(), "query", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected topK clamped to collection size, got %d hits", len(hits))
	}
}

func TestAddEmptyBatch(t *testing.T) {
	store := newTestStore(t, &fakeEmbedder{})

	ids, err := store.Add(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids != nil {
		t.Errorf("expected no ids for empty batch, got %v", ids)
	}
}

func TestDeleteByIDs(t *testing.T) {
	store := newTestStore(t, &fakeEmbedder{})

	var chunks []Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, Chunk{Content: fmt.Sprintf("document %d", i)})
	}
	ids, err := store.Add(context.Background(), chunks)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteByIDs(context.Background(), ids[:2]); err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().TotalDocuments; got != 1 {
		t.Errorf("expected 1 document after delete, got %d", got)
	}

	// Deleting nothing is fine.
	if err := store.DeleteByIDs(context.Background(), nil); err != nil {
		t.Errorf("empty delete should be a no-op: %v", err)
	}
}

func TestStatsReportsNameAndCount(t *testing.T) {
	store := newTestStore(t, &fakeEmbedder{})

	s := store.Stats()
	if s.CollectionName != "test-collection" || s.TotalDocuments != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}
