package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// providerSpec pins down the differences between remote embedding
// APIs. Jina and OpenAI use the same request and response shapes, so
// one client covers both.
type providerSpec struct {
	name      string
	endpoint  string
	model     string
	dimension int
}

var (
	jinaSpec = providerSpec{
		name:      ProviderJina,
		endpoint:  "https://api.jina.ai/v1/embeddings",
		model:     "jina-embeddings-v3",
		dimension: 1024,
	}
	openAISpec = providerSpec{
		name:      ProviderOpenAI,
		endpoint:  "https://api.openai.com/v1/embeddings",
		model:     "text-embedding-3-small",
		dimension: 1536,
	}
)

// HTTPProvider calls a remote embeddings API with retry and caching.
type HTTPProvider struct {
	spec       providerSpec
	apiKey     string
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
}

func NewJinaProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	return newHTTPProvider(jinaSpec, apiKey, cache)
}

func NewOpenAIProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	return newHTTPProvider(openAISpec, apiKey, cache)
}

func newHTTPProvider(spec providerSpec, apiKey string, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key for %s", ErrNoProvider, spec.name)
	}
	return &HTTPProvider{
		spec:       spec,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if p.cache != nil {
		if vec, ok := p.cache.Get(ContentHash(text)); ok {
			return vec, nil
		}
	}
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	vecs, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		return p.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.spec.name, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
			ErrProviderFailed, p.spec.name, len(vecs), len(texts))
	}

	if p.cache != nil {
		for i, vec := range vecs {
			p.cache.Set(ContentHash(texts[i]), vec)
		}
	}
	return vecs, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": p.spec.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.spec.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The API may return data out of order; index is authoritative.
	vecs := make([][]float32, len(apiResp.Data))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.spec.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.spec.name
}

func (p *HTTPProvider) Model() string {
	return p.spec.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
