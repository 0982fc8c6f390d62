package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/socratic/internal/metrics"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	rdb *redis.Client
}

// RedisConfig holds configuration for the Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedEmbedder memoizes another embedder's vectors. Cache failures are
// logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner  Embedder
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner with cache. A zero ttl keeps entries forever.
func NewCachedEmbedder(inner Embedder, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (e *CachedEmbedder) Name() string {
	return e.inner.Name()
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

// CacheKey returns the cache key for text under the given embedder name.
func CacheKey(embedderName, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + embedderName + ":" + hex.EncodeToString(sum[:])
}

func (e *CachedEmbedder) lookup(ctx context.Context, key string) []float32 {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			e.logger.Warn("embedding cache get failed", "error", err)
		}
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
		return nil
	}
	vec := Decode(data)
	if len(vec) == 0 {
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.EmbeddingCache.WithLabelValues("hit").Inc()
	return vec
}

func (e *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	if err := e.cache.Set(ctx, key, Encode(vec), e.ttl); err != nil {
		e.logger.Warn("embedding cache set failed", "error", err)
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(e.inner.Name(), text)
	if vec := e.lookup(ctx, key); vec != nil {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, vec)
	return vec, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec := e.lookup(ctx, CacheKey(e.inner.Name(), text)); vec != nil {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.store(ctx, CacheKey(e.inner.Name(), texts[i]), vecs[j])
	}
	return out, nil
}
