package ai

import (
	"context"

	"coremind-platform/internal/telemetry"
)

// MeasuredEmbedder records one metric sample per backend call. It wraps
// the raw backend, beneath any cache, so cache hits are not counted as
// backend traffic.
type MeasuredEmbedder struct {
	inner   Embedder
	metrics *telemetry.Metrics
}

func NewMeasuredEmbedder(inner Embedder, metrics *telemetry.Metrics) *MeasuredEmbedder {
	return &MeasuredEmbedder{inner: inner, metrics: metrics}
}

func (m *MeasuredEmbedder) Model() string { return m.inner.Model() }

func (m *MeasuredEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := m.inner.EmbedOne(ctx, text)
	m.metrics.RecordEmbeddingCall(m.inner.Model(), 1, err == nil)
	return vec, err
}

func (m *MeasuredEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := m.inner.EmbedMany(ctx, texts)
	m.metrics.RecordEmbeddingCall(m.inner.Model(), len(texts), err == nil)
	return vecs, err
}
