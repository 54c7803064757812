package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

// Client is a client for an OpenAI-compatible chat completions API.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Retry   RetryPolicy
	client  *http.Client
}

// ChatOption customises a Client.
type ChatOption func(*Client)

// WithResponseTimeout bounds how long a request may wait for the response
// headers. A streamed body may take longer once the first byte has arrived.
func WithResponseTimeout(d time.Duration) ChatOption {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = d
		c.client = &http.Client{Transport: transport}
	}
}

// WithChatRetry sets the retry policy for establishing a completion.
func WithChatRetry(p RetryPolicy) ChatOption {
	return func(c *Client) {
		c.Retry = p
	}
}

// NewClient creates a new LLM client.
func NewClient(baseURL, apiKey, model string, opts ...ChatOption) *Client {
	c := &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Retry:   DefaultRetryPolicy(1),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

var errStopStream = errors.New("stream consumer stopped")

// StreamChat sends a streaming chat completion request to the LLM API.
// It reads Server-Sent Events (SSE) from the response and calls the callback for each chunk.
// Connection failures are retried; once the first chunk has arrived they are not.
func (c *Client) StreamChat(ctx context.Context, messages []Message, params ChatParams, callback func(chunk string) error) error {
	var resp *http.Response
	_, err := c.Retry.Do(ctx, "stream chat", func(ctx context.Context) error {
		r, err := c.send(ctx, c.buildRequest(messages, params, true))
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Read Server-Sent Events
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	const dataPrefix = "data: "
	const doneMarker = "[DONE]"

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneMarker {
			break
		}

		var streamResp struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}

		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			// Skip malformed JSON chunks
			continue
		}

		if len(streamResp.Choices) > 0 {
			chunk := streamResp.Choices[0].Delta.Content
			if chunk != "" {
				if err := callback(chunk); err != nil {
					return fmt.Errorf("callback error: %w", err)
				}
			}

			if streamResp.Choices[0].FinishReason != "" {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}

	return nil
}

// Stream returns the completion as a lazy token sequence. Breaking out of the
// range loop, or cancelling ctx, closes the underlying HTTP stream. A failure
// is yielded once as the final element.
func (c *Client) Stream(ctx context.Context, messages []Message, params ChatParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := c.StreamChat(ctx, messages, params, func(chunk string) error {
			if !yield(chunk, nil) {
				return errStopStream
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopStream) {
			yield("", err)
		}
	}
}

func (c *Client) buildRequest(messages []Message, params ChatParams, stream bool) ChatRequest {
	model := params.Model
	if model == "" {
		model = c.Model
	}
	req := ChatRequest{
		Model:     model,
		Messages:  make([]ChatMessage, len(messages)),
		Stream:    stream,
		MaxTokens: params.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = ChatMessage(m)
	}
	if params.Temperature > 0 {
		t := params.Temperature
		req.Temperature = &t
	}
	return req
}

func (c *Client) send(ctx context.Context, payload ChatRequest) (*http.Response, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

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
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}
