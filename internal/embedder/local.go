package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/nexushq/nexus/internal/vector"
)

const localDimension = 384

// LocalProvider derives unit vectors from content hashes. The vectors
// carry no semantic signal, but they are deterministic, so the full
// pipeline can be run and tested without network access.
type LocalProvider struct {
	model string
	cache *Cache
}

func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "local-hash", cache: cache}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	hash := ContentHash(text)
	if l.cache != nil {
		if vec, ok := l.cache.Get(hash); ok {
			return vec, nil
		}
	}

	vec := make([]float32, localDimension)
	seed := sha256.Sum256([]byte(text))
	for i := range vec {
		if i%len(seed) == 0 && i > 0 {
			seed = sha256.Sum256(seed[:])
		}
		vec[i] = float32(seed[i%len(seed)])/255.0 - 0.5
	}
	vec = vector.Normalize(vec)

	if l.cache != nil {
		l.cache.Set(hash, vec)
	}
	return vec, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (l *LocalProvider) Dimension() int {
	return localDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
