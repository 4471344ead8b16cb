package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coremind-platform/internal/logger"
)

// CachedEmbedder is a read-through Redis cache over another Embedder.
// Keys include the model name so collections never mix vectors across
// models. Cache failures degrade to computing the embedding.
type CachedEmbedder struct {
	inner Embedder
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, rdb *redis.Client, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.inner.Model(), hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("embedding cache read failed, computing all", "error", err)
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
	} else {
		for i, v := range cached {
			s, ok := v.(string)
			if !ok {
				missIdx = append(missIdx, i)
				continue
			}
			var vec []float32
			if err := json.Unmarshal([]byte(s), &vec); err != nil {
				missIdx = append(missIdx, i)
				continue
			}
			vectors[i] = vec
		}
	}

	if len(missIdx) == 0 {
		return vectors, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}

	computed, err := c.inner.EmbedMany(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		vectors[i] = computed[j]
		if data, err := json.Marshal(computed[j]); err == nil {
			pipe.Set(ctx, keys[i], data, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("embedding cache write failed", "error", err)
	}

	return vectors, nil
}
