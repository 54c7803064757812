package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"realestate-rag/internal/domain"
)

// ParsedBlock is one layout element returned by a Parser. Page is 0 when the
// parser was handed a single page and does not know its position.
type ParsedBlock struct {
	Page  int
	Order int
	Text  string
	Type  domain.ContentType
}

// Parser extracts layout-tagged blocks from a complex document.
//
//go:generate mockgen -destination=mocks/mock_parser.go -package=mocks realestate-rag/internal/loader Parser,PageSplitter
type Parser interface {
	Parse(ctx context.Context, raw []byte, filename string) ([]ParsedBlock, error)
}

// HTTPParser uploads documents to a layout-parsing service that answers with markdown.
type HTTPParser struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	markdown *MarkdownParser
	client   *http.Client
}

// NewHTTPParser creates a parser client for the service at baseURL.
func NewHTTPParser(baseURL, apiKey string, timeout time.Duration) *HTTPParser {
	return &HTTPParser{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Timeout:  timeout,
		markdown: NewMarkdownParser(),
		client:   http.DefaultClient,
	}
}

// ParseResponse is the parsing service's reply.
type ParseResponse struct {
	Markdown string `json:"markdown"`
}

// Parse posts raw as a multipart upload to {base}/v1/parse and converts the returned markdown to blocks.
func (p *HTTPParser) Parse(ctx context.Context, raw []byte, filename string) ([]ParsedBlock, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/v1/parse", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.APIKey))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %w", domain.ErrExternalService, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: bad status %d: %s", domain.ErrExternalService, resp.StatusCode, string(raw))
	}

	var parsed ParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return p.markdown.Blocks([]byte(parsed.Markdown)), nil
}
