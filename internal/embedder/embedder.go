// Package embedder turns text into embedding vectors. Remote
// providers share one HTTP client implementation since their APIs
// differ only in endpoint and model names; a deterministic local
// provider keeps the rest of the system usable without an API key.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrBatchTooLarge  = errors.New("batch size exceeds limit")
	ErrProviderFailed = errors.New("embedding provider failed")
	ErrNoProvider     = errors.New("no embedding provider configured")
)

const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	MaxBatchSize = 100
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Cache holds recent embeddings keyed by content hash so re-indexing
// unchanged chunks costs nothing.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy so callers cannot mutate the cached vector.
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (c *Cache) Set(hash string, vec []float32) {
	c.cache.Add(hash, vec)
}

func (c *Cache) Len() int {
	return c.cache.Len()
}

func (c *Cache) Purge() {
	c.cache.Purge()
}

// ContentHash identifies text for caching.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
	}
	return nil
}
