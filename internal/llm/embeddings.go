package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second
)

// EmbeddingsClient is a client for an OpenAI-compatible embeddings API.
type EmbeddingsClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // Expected vector size for validation
	BatchSize    int
	Concurrency  int
	Timeout      time.Duration
	Retry        RetryPolicy

	limiter *rate.Limiter
	client  *http.Client
}

// EmbeddingsOption customises an EmbeddingsClient.
type EmbeddingsOption func(*EmbeddingsClient)

// WithBatchSize sets how many texts are sent per request by EmbedBatch.
func WithBatchSize(n int) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

// WithConcurrency bounds the number of in-flight batch requests.
func WithConcurrency(n int) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// WithTimeout bounds each individual request attempt.
func WithTimeout(d time.Duration) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		c.Retry = p
	}
}

// WithRateLimit caps requests per second. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) EmbeddingsOption {
	return func(c *EmbeddingsClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewEmbeddingsClient creates a new embeddings client.
// expectedSize is the index vector dimension; every returned embedding is validated against it.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int, opts ...EmbeddingsOption) *EmbeddingsClient {
	c := &EmbeddingsClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		BatchSize:    defaultBatchSize,
		Concurrency:  defaultConcurrency,
		Timeout:      defaultTimeout,
		Retry:        DefaultRetryPolicy(3),
		client:       http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelName returns the embedding model identifier recorded on indexed documents.
func (c *EmbeddingsClient) ModelName() string {
	return c.Model
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// BatchResult holds the outcome of EmbedBatch. Vectors[i] is nil when text i
// could not be embedded; Err lists those indexes.
type BatchResult struct {
	Vectors [][]float32
	Err     *domain.EmbeddingServiceError
}

// Failed reports whether text i has no vector.
func (r BatchResult) Failed(i int) bool {
	return i < 0 || i >= len(r.Vectors) || r.Vectors[i] == nil
}

// EmbedTexts embeds texts in a single request, retrying transient failures.
// A final failure is returned as *domain.EmbeddingServiceError covering every text.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &domain.ValidationError{Field: "texts", Message: "empty input array"}
	}

	var result [][]float32
	attempts, err := c.Retry.Do(ctx, "embed", func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}
		vecs, err := c.embedOnce(ctx, texts)
		if err != nil {
			return err
		}
		result = vecs
		return nil
	})
	if err != nil {
		indexes := make([]int, len(texts))
		for i := range indexes {
			indexes[i] = i
		}
		return nil, &domain.EmbeddingServiceError{
			Indexes:  indexes,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %w", domain.ErrExternalService, err),
		}
	}
	return result, nil
}

// EmbedBatch splits texts into BatchSize requests and runs them concurrently.
// A failed batch marks only its own texts as failed. The returned error is
// non-nil only for invalid input or a cancelled context.
func (c *EmbeddingsClient) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	if len(texts) == 0 {
		return BatchResult{}, &domain.ValidationError{Field: "texts", Message: "empty input array"}
	}
	logger := contextutil.LoggerFromContext(ctx)

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	res := BatchResult{Vectors: make([][]float32, len(texts))}
	var (
		mu       sync.Mutex
		failed   []int
		attempts int
		firstErr error
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.EmbedTexts(ctx, texts[start:end])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.WarnContext(ctx, "embedding batch failed", "start", start, "end", end, "error", err)
				for i := start; i < end; i++ {
					failed = append(failed, i)
				}
				if firstErr == nil {
					firstErr = err
				}
				var ese *domain.EmbeddingServiceError
				if errors.As(err, &ese) && ese.Attempts > attempts {
					attempts = ese.Attempts
				}
				return nil
			}
			copy(res.Vectors[start:end], vecs)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("embedding cancelled: %w", err)
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		res.Err = &domain.EmbeddingServiceError{Indexes: failed, Attempts: attempts, Err: firstErr}
	}
	return res, nil
}

func (c *EmbeddingsClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	payload := EmbeddingsRequest{
		Model: c.Model,
		Input: texts,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingsResp.Data))
	}

	result := make([][]float32, len(embeddingsResp.Data))
	for i, data := range embeddingsResp.Data {
		if c.ExpectedSize > 0 && len(data.Embedding) != c.ExpectedSize {
			return nil, permanent(fmt.Errorf("embedding %d has size %d, expected %d: %w",
				i, len(data.Embedding), c.ExpectedSize, domain.ErrDimensionMismatch))
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}
