package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coremind-platform/internal/logger"
)

// DefaultLocalModel is the fallback when the configured local model
// cannot be loaded.
const DefaultLocalModel = "nomic-embed-text"

// localEmbedder serves embeddings from a local Ollama instance. It is
// the no-credential backend of last resort.
type localEmbedder struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// newLocalEmbedder probes the configured model and repairs or replaces
// it if it cannot be loaded:
//  1. delete the local copy (corrupted pulls leave broken manifests) and
//     re-pull, then retry the probe once;
//  2. if that fails and the configured model is not the default, repeat
//     the procedure with the default model;
//  3. if that also fails, fail construction.
func newLocalEmbedder(ctx context.Context, baseURL, model string) (*localEmbedder, error) {
	if model == "" {
		model = DefaultLocalModel
	}
	le := &localEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpc:   &http.Client{Timeout: 5 * time.Minute}, // pulls are slow
	}

	if err := le.load(ctx); err != nil {
		if le.model == DefaultLocalModel {
			return nil, fmt.Errorf("%w: local model %q: %v", ErrNoBackend, le.model, err)
		}
		logger.Warn("local embedding model unavailable, falling back to default",
			"model", le.model, "default", DefaultLocalModel, "error", err)
		le.model = DefaultLocalModel
		if err := le.load(ctx); err != nil {
			return nil, fmt.Errorf("%w: default local model: %v", ErrNoBackend, err)
		}
	}

	return le, nil
}

// load verifies the model is usable, re-pulling it once if not.
func (l *localEmbedder) load(ctx context.Context) error {
	if err := l.show(ctx); err == nil {
		return nil
	}

	logger.Warn("local embedding model missing or corrupt, re-pulling", "model", l.model)
	_ = l.deleteModel(ctx) // absent model is fine
	if err := l.pull(ctx); err != nil {
		return fmt.Errorf("pull %s: %w", l.model, err)
	}
	return l.show(ctx)
}

func (l *localEmbedder) Model() string { return l.model }

func (l *localEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (l *localEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	raw, err := l.post(ctx, "/api/embed", map[string]any{
		"model": l.model,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	// Envelope: {"model": "...", "embeddings": [[...], ...]}
	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

func (l *localEmbedder) show(ctx context.Context) error {
	_, err := l.post(ctx, "/api/show", map[string]any{"model": l.model})
	return err
}

func (l *localEmbedder) pull(ctx context.Context) error {
	_, err := l.post(ctx, "/api/pull", map[string]any{"model": l.model, "stream": false})
	return err
}

func (l *localEmbedder) deleteModel(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"model": l.model})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, l.baseURL+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete returned %d", resp.StatusCode)
	}
	return nil
}

func (l *localEmbedder) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama %s returned %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, nil
}
