// Package queue carries document ingestion off the request path. Heavy
// work (splitting, embedding, indexing) runs in the worker process;
// enqueueing is cheap and durable.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/philippgille/chromem-go"

	"coremind-platform/internal/ai"
	"coremind-platform/internal/knowledge"
	"coremind-platform/internal/logger"
	"coremind-platform/internal/telemetry"
)

const (
	TaskIndexDocument  = "knowledge:index"
	TaskDropCollection = "knowledge:drop"
)

type IndexDocumentPayload struct {
	Collection string            `json:"collection"`
	Title      string            `json:"title"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type DropCollectionPayload struct {
	Collection string `json:"collection"`
}

// NewIndexDocumentTask enqueues one document for splitting, embedding
// and indexing into the named collection.
func NewIndexDocumentTask(collection, title, text string, metadata map[string]string) (*asynq.Task, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if text == "" {
		return nil, fmt.Errorf("document text is empty")
	}

	payload, err := json.Marshal(IndexDocumentPayload{
		Collection: collection,
		Title:      title,
		Text:       text,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewDropCollectionTask enqueues removal of a whole collection.
func NewDropCollectionTask(collection string) (*asynq.Task, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	payload, err := json.Marshal(DropCollectionPayload{Collection: collection})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDropCollection,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(time.Minute),
		asynq.Queue("default"),
	), nil
}

// Ingestor handles ingestion tasks. One Ingestor serves all collections;
// the vector database and embedder are shared with the chat process
// through the same persist directory and model configuration.
type Ingestor struct {
	db       *chromem.DB
	embedder ai.Embedder
	splitter *knowledge.Splitter
	metrics  *telemetry.Metrics
}

// NewIngestor wires the ingestion pipeline. Metrics may be nil.
func NewIngestor(db *chromem.DB, embedder ai.Embedder, splitter *knowledge.Splitter, metrics *telemetry.Metrics) *Ingestor {
	return &Ingestor{db: db, embedder: embedder, splitter: splitter, metrics: metrics}
}

// HandleIndexDocument splits the document and writes all chunks to the
// collection in one batch. A malformed payload is never retried; embed
// and index failures are, with asynq backoff.
func (in *Ingestor) HandleIndexDocument(ctx context.Context, t *asynq.Task) error {
	var payload IndexDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	logger.Info("indexing document",
		"collection", payload.Collection, "title", payload.Title, "bytes", len(payload.Text))

	store, err := knowledge.NewStore(in.db, payload.Collection, in.embedder)
	if err != nil {
		return err
	}

	chunks := in.splitter.SplitDocuments([]knowledge.Document{{
		Title:    payload.Title,
		Content:  payload.Text,
		Metadata: payload.Metadata,
	}})
	if len(chunks) == 0 {
		logger.Warn("document produced no chunks, skipping",
			"collection", payload.Collection, "title", payload.Title)
		return nil
	}

	ids, err := store.Add(ctx, chunks)
	if err != nil {
		return fmt.Errorf("index %q into %s: %w", payload.Title, payload.Collection, err)
	}

	if in.metrics != nil {
		in.metrics.RecordDocumentsIndexed(payload.Collection, int64(len(ids)))
	}

	logger.Info("document indexed",
		"collection", payload.Collection, "title", payload.Title, "chunks", len(ids))
	return nil
}

// HandleDropCollection removes the collection and all its documents.
func (in *Ingestor) HandleDropCollection(ctx context.Context, t *asynq.Task) error {
	var payload DropCollectionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	if err := in.db.DeleteCollection(payload.Collection); err != nil {
		return fmt.Errorf("drop collection %s: %w", payload.Collection, err)
	}

	logger.Info("collection dropped", "collection", payload.Collection)
	return nil
}
