package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sync"

	"github.com/Heyoub/caliber-sub001/internal/models"
)

// CachingEmbedder decorates an Embedder with a bounded, SHA-256-keyed
// cache and simple random eviction when full (spec §4.9 "An optional
// caching decorator keys embeddings by SHA-256 of the input text with a
// bounded-size cache and simple random eviction when full").
type CachingEmbedder struct {
	inner   Embedder
	maxSize int

	mu    sync.Mutex
	cache map[string]models.Embedding
	keys  []string // insertion order, used to pick a random victim
}

// NewCachingEmbedder wraps inner with a cache capped at maxSize entries.
func NewCachingEmbedder(inner Embedder, maxSize int) *CachingEmbedder {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachingEmbedder{inner: inner, maxSize: maxSize, cache: make(map[string]models.Embedding)}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding when text has been seen before,
// otherwise delegates to inner and caches the result.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return c.embed(ctx, text)
}

func (c *CachingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *CachingEmbedder) ModelID() string { return c.inner.ModelID() }

// EmbedBatch embeds each text independently through the same cache.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		e, err := c.embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (c *CachingEmbedder) embed(ctx context.Context, text string) (models.Embedding, error) {
	key := cacheKey(text)

	c.mu.Lock()
	if hit, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return hit, nil
	}
	c.mu.Unlock()

	e, err := c.inner.Embed(ctx, text)
	if err != nil {
		return models.Embedding{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cache[key]; !exists {
		if len(c.keys) >= c.maxSize {
			victim := c.keys[rand.Intn(len(c.keys))]
			delete(c.cache, victim)
			c.keys = removeKey(c.keys, victim)
		}
		c.cache[key] = e
		c.keys = append(c.keys, key)
	}
	return e, nil
}

func removeKey(keys []string, victim string) []string {
	for i, k := range keys {
		if k == victim {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
