// Package redis caches query embeddings so repeated questions skip the
// embedding model.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

const defaultTTL = 24 * time.Hour

// EmbeddingCache decorates a ports.Embedder. Redis failures never fail the
// query; they are logged and the inner embedder is used directly.
type EmbeddingCache struct {
	client *goredis.Client
	inner  ports.Embedder
	model  string
	ttl    time.Duration
}

func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

func NewEmbeddingCache(client *goredis.Client, inner ports.Embedder, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &EmbeddingCache{client: client, inner: inner, model: model, ttl: ttl}
}

func (c *EmbeddingCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vector []float32
		if jsonErr := json.Unmarshal(raw, &vector); jsonErr == nil && len(vector) > 0 {
			return vector, nil
		}
		slog.Warn("embedding_cache_corrupt", "key", key)
	case !errors.Is(err, goredis.Nil):
		slog.Warn("embedding_cache_get_failed", "error", err.Error())
	}

	vector, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(vector)
	if err == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			slog.Warn("embedding_cache_set_failed", "error", setErr.Error())
		}
	}
	return vector, nil
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}
