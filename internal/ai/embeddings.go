// Package ai provides text embedding backends. Backend selection is a
// static priority order evaluated once at construction: the first
// configured cloud credential wins, otherwise the local model serves.
package ai

import (
	"context"
	"errors"
	"fmt"

	"coremind-platform/internal/config"
	"coremind-platform/internal/logger"
)

// ErrNoBackend is returned when no embedding backend can be initialized.
// The pipeline must not run without embedding capability.
var ErrNoBackend = errors.New("no usable embedding backend")

// Embedder converts text to vectors. Vectors are returned as produced by
// the underlying model (unnormalized); similarity is the index's concern.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany embeds texts in one batch call, preserving order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier. All vectors in one
	// collection must come from one model.
	Model() string
}

// NewEmbedder selects and constructs the embedding backend:
// Google Generative AI when GEMINI_API_KEY is set, an OpenAI-compatible
// API when OPENAI_API_KEY is set, otherwise the local Ollama model
// (no credential required). Construction failures are fatal.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch {
	case cfg.GeminiAPIKey != "":
		e, err := newGoogleEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
		if err != nil {
			return nil, fmt.Errorf("%w: google backend: %v", ErrNoBackend, err)
		}
		logger.Info("using Google embeddings", "model", cfg.GoogleEmbeddingsModel)
		return e, nil

	case cfg.OpenAIAPIKey != "":
		e := newOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingsModel)
		logger.Info("using OpenAI embeddings", "model", cfg.OpenAIEmbeddingsModel)
		return e, nil

	default:
		e, err := newLocalEmbedder(ctx, cfg.OllamaBaseURL, cfg.LocalEmbeddingsModel)
		if err != nil {
			return nil, err
		}
		logger.Info("using local embeddings", "model", e.Model())
		return e, nil
	}
}
