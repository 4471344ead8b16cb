package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"coremind-platform/internal/knowledge"
)

type staticEmbedder struct{}

func (staticEmbedder) Model() string { return "static" }

func (staticEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (staticEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func newTestIngestor(t *testing.T) *Ingestor {
	t.Helper()

	db, err := knowledge.OpenDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewIngestor(db, staticEmbedder{}, knowledge.NewSplitter(50, 0), nil)
}

func TestNewIndexDocumentTaskValidates(t *testing.T) {
	if _, err := NewIndexDocumentTask("", "title", "text", nil); err == nil {
		t.Error("expected error for missing collection")
	}
	if _, err := NewIndexDocumentTask("docs", "title", "", nil); err == nil {
		t.Error("expected error for empty text")
	}

	task, err := NewIndexDocumentTask("docs", "title", "some text", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskIndexDocument {
		t.Errorf("task type = %q", task.Type())
	}
}

func TestHandleIndexDocument(t *testing.T) {
	in := newTestIngestor(t)

	task, err := NewIndexDocumentTask("docs", "guide",
		"First sentence goes here. Second sentence goes here. Third sentence closes.",
		map[string]string{"lang": "en"})
	if err != nil {
		t.Fatal(err)
	}

	if err := in.HandleIndexDocument(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	store, err := knowledge.NewStore(in.db, "docs", staticEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().TotalDocuments; got == 0 {
		t.Error("no chunks indexed")
	}

	hits, err := store.Search(context.Background(), "anything", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if hits[0].Metadata["title"] != "guide" || hits[0].Metadata["lang"] != "en" {
		t.Errorf("chunk metadata missing: %v", hits[0].Metadata)
	}
}

func TestHandleIndexDocumentRejectsBadPayload(t *testing.T) {
	in := newTestIngestor(t)

	task := asynq.NewTask(TaskIndexDocument, []byte("not json"))
	err := in.HandleIndexDocument(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("malformed payload must not be retried: %v", err)
	}
}

func TestHandleDropCollection(t *testing.T) {
	in := newTestIngestor(t)

	task, err := NewIndexDocumentTask("doomed", "doc", "some content to index", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := in.HandleIndexDocument(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	drop, err := NewDropCollectionTask("doomed")
	if err != nil {
		t.Fatal(err)
	}
	if err := in.HandleDropCollection(context.Background(), drop); err != nil {
		t.Fatal(err)
	}
}
