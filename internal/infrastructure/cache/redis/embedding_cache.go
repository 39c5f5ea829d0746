package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.Embedder = (*CachedEmbedder)(nil)

const embeddingPrefix = "replica:query-embedding:"

// CachedEmbedder memoizes query embeddings. Passage batches are never cached.
// Redis failures degrade to direct embedding.
type CachedEmbedder struct {
	inner  ports.Embedder
	client redis.UniversalClient
	model  string
	ttl    time.Duration
}

func NewCachedEmbedder(inner ports.Embedder, client redis.UniversalClient, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		model:  model,
		ttl:    ttl,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.Embed(ctx, texts)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vector, ok := decodeVector(raw); ok {
			return vector, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("embedding_cache_read_failed", "error", err.Error())
	}

	vector, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, encodeVector(vector), c.ttl).Err(); err != nil {
		slog.Warn("embedding_cache_write_failed", "error", err.Error())
	}
	return vector, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return embeddingPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	out := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, true
}
