// Package redis caches query embeddings in Redis.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/campus-assistant/internal/core/ports"
	"github.com/kirillkom/campus-assistant/internal/observability/tracing"
)

const (
	keyPrefix = "campus:embed:"

	defaultSharedTimeout = 2 * time.Minute
)

type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// EmbeddingCache wraps an Embedder. Query vectors are cached per model; batch
// embedding for index builds goes straight to the inner embedder.
// Redis failures degrade to uncached calls.
type EmbeddingCache struct {
	inner ports.Embedder
	rdb   store
	model string
	ttl   time.Duration
	group singleflight.Group

	// sharedTimeout bounds the upstream call that concurrent callers share.
	sharedTimeout time.Duration
}

func NewEmbeddingCache(inner ports.Embedder, rdb store, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		inner: inner,
		rdb:   rdb,
		model: model,
		ttl:   ttl,

		sharedTimeout: defaultSharedTimeout,
	}
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.Embed(ctx, texts)
}

func (c *EmbeddingCache) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	key := c.key(text)
	ctx, span := tracing.Start(ctx, "cache.embed_query")
	defer func() { tracing.End(span, err) }()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil && len(raw) > 0:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return decodeVector(raw), nil
	case err != nil && !errors.Is(err, redis.Nil):
		slog.Warn("embedding_cache_get_failed", "error", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The shared call outlives any single caller; each caller still stops on its own ctx.
	results := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()

		v, err := c.inner.EmbedQuery(callCtx, text)
		if err != nil {
			return nil, err
		}
		if err := c.rdb.Set(callCtx, key, encodeVector(v), c.ttl).Err(); err != nil {
			slog.Warn("embedding_cache_set_failed", "error", err)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		span.SetAttributes(attribute.Bool("cache.shared", res.Shared))
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
