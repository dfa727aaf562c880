package rag

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheConfig holds Redis cache configuration.
type CacheConfig struct {
	Address      string        `json:"address"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	EmbeddingTTL time.Duration `json:"embedding_ttl"`
	ResultTTL    time.Duration `json:"result_ttl"`
}

// DefaultCacheConfig returns sensible cache defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Address:      "localhost:6379",
		EmbeddingTTL: 24 * time.Hour,
		ResultTTL:    10 * time.Minute,
	}
}

// RedisCache caches query embeddings and formatted search results. All
// methods are safe on a nil receiver, so callers can run without a cache.
type RedisCache struct {
	client       *redis.Client
	logger       *slog.Logger
	embeddingTTL time.Duration
	resultTTL    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, config *CacheConfig, logger *slog.Logger) (*RedisCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Address, err)
	}

	logger.Info("Connected to Redis cache", "address", config.Address, "db", config.DB)

	return &RedisCache{
		client:       client,
		logger:       logger.With("component", "redis-cache"),
		embeddingTTL: config.EmbeddingTTL,
		resultTTL:    config.ResultTTL,
	}, nil
}

// GetEmbedding returns a cached embedding for the text, or (nil, false).
func (c *RedisCache) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, embeddingKey(model, text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Embedding cache read failed", "error", err)
		}
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		c.logger.Warn("Corrupt cached embedding discarded", "error", err)
		return nil, false
	}
	return vector, true
}

// SetEmbedding stores an embedding. Cache write failures are logged, never
// surfaced to the caller.
func (c *RedisCache) SetEmbedding(ctx context.Context, model, text string, vector []float32) {
	if c == nil {
		return
	}

	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, embeddingKey(model, text), data, c.embeddingTTL).Err(); err != nil {
		c.logger.Warn("Embedding cache write failed", "error", err)
	}
}

// GetSearchResults returns cached formatted results for a query signature.
func (c *RedisCache) GetSearchResults(ctx context.Context, signature string) ([]SearchResult, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, resultKey(signature)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Result cache read failed", "error", err)
		}
		return nil, false
	}

	var results []SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("Corrupt cached results discarded", "error", err)
		return nil, false
	}
	return results, true
}

// SetSearchResults stores formatted results under a query signature.
func (c *RedisCache) SetSearchResults(ctx context.Context, signature string, results []SearchResult) {
	if c == nil {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, resultKey(signature), data, c.resultTTL).Err(); err != nil {
		c.logger.Warn("Result cache write failed", "error", err)
	}
}

// QuerySignature builds a stable cache signature for a search invocation.
func QuerySignature(query, searchType string, topK int, category string) string {
	return fmt.Sprintf("%s|%s|%d|%s", query, searchType, topK, category)
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func embeddingKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "|" + text))
	return fmt.Sprintf("rag:embedding:%x", hash[:16])
}

func resultKey(signature string) string {
	hash := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("rag:results:%x", hash[:16])
}
