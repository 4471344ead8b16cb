package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	ChatTurns           metric.Int64Counter
	ChatTurnDuration    metric.Float64Histogram
	EmbeddingCalls      metric.Int64Counter
	DocumentsIndexed    metric.Int64Counter
	KnowledgeSearches   metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("coremind-platform")

	chatTurns, err := meter.Int64Counter(
		"chat.turns.total",
		metric.WithDescription("Total completed chat turns"),
	)
	if err != nil {
		return nil, err
	}

	chatTurnDuration, err := meter.Float64Histogram(
		"chat.turn.duration",
		metric.WithDescription("Chat turn duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embeddingCalls, err := meter.Int64Counter(
		"embeddings.calls.total",
		metric.WithDescription("Total embedding backend calls"),
	)
	if err != nil {
		return nil, err
	}

	documentsIndexed, err := meter.Int64Counter(
		"knowledge.documents.indexed",
		metric.WithDescription("Total chunks added to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	knowledgeSearches, err := meter.Int64Counter(
		"knowledge.searches.total",
		metric.WithDescription("Total vector index searches"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ChatTurns:           chatTurns,
		ChatTurnDuration:    chatTurnDuration,
		EmbeddingCalls:      embeddingCalls,
		DocumentsIndexed:    documentsIndexed,
		KnowledgeSearches:   knowledgeSearches,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordChatTurn records one completed chat turn
func (m *Metrics) RecordChatTurn(route string, degraded bool, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("chat.route", route),
		attribute.Bool("chat.degraded", degraded),
	}

	m.ChatTurns.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.ChatTurnDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordEmbeddingCall records one embedding backend call
func (m *Metrics) RecordEmbeddingCall(backend string, texts int, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("embeddings.backend", backend),
		attribute.Int("embeddings.batch_size", texts),
		attribute.Bool("embeddings.success", success),
	}

	m.EmbeddingCalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDocumentsIndexed records chunks written to a collection
func (m *Metrics) RecordDocumentsIndexed(collection string, count int64) {
	attrs := []attribute.KeyValue{
		attribute.String("knowledge.collection", collection),
	}

	m.DocumentsIndexed.Add(context.Background(), count, metric.WithAttributes(attrs...))
}

// RecordKnowledgeSearch records one vector index search
func (m *Metrics) RecordKnowledgeSearch(collection string, hits int) {
	attrs := []attribute.KeyValue{
		attribute.String("knowledge.collection", collection),
		attribute.Int("knowledge.hits", hits),
	}

	m.KnowledgeSearches.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
