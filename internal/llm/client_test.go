package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8081", "test-key", "test-model")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8081" {
		t.Errorf("NewClient() BaseURL = %v, want http://localhost:8081", client.BaseURL)
	}
	if client.APIKey != "test-key" {
		t.Errorf("NewClient() APIKey = %v, want test-key", client.APIKey)
	}
	if client.Model != "test-model" {
		t.Errorf("NewClient() Model = %v, want test-model", client.Model)
	}
	if client.client == nil {
		t.Error("NewClient() client should not be nil")
	}
}

func TestClient_StreamChat(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantChunks []string
		wantErr    bool
	}{
		{
			name:    "successful streaming",
			message: "Hello",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Accept") != "text/event-stream" {
					t.Error("missing Accept header")
				}

				w.Header().Set("Content-Type", "text/event-stream")
				flusher, _ := w.(http.Flusher)

				chunks := []string{
					`{"choices":[{"delta":{"content":"Hello"}}]}`,
					`{"choices":[{"delta":{"content":" "}}]}`,
					`{"choices":[{"delta":{"content":"world"}}]}`,
					`{"choices":[{"finish_reason":"stop"}]}`,
				}

				for _, chunk := range chunks {
					_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
					flusher.Flush()
				}
				_, _ = w.Write([]byte("data: [DONE]\n\n"))
			},
			wantChunks: []string{"Hello", " ", "world"},
			wantErr:    false,
		},
		{
			name:    "server error",
			message: "Hello",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			var receivedChunks []string

			messages := []Message{{Role: "user", Content: tt.message}}
			err := client.StreamChat(context.Background(), messages, ChatParams{}, func(chunk string) error {
				receivedChunks = append(receivedChunks, chunk)
				return nil
			})

			if tt.wantErr {
				if err == nil {
					t.Errorf("StreamChat() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("StreamChat() unexpected error: %v", err)
				return
			}

			if len(receivedChunks) != len(tt.wantChunks) {
				t.Errorf("StreamChat() received %d chunks, want %d", len(receivedChunks), len(tt.wantChunks))
			}

			for i, chunk := range receivedChunks {
				if i < len(tt.wantChunks) && chunk != tt.wantChunks[i] {
					t.Errorf("StreamChat() chunk[%d] = %v, want %v", i, chunk, tt.wantChunks[i])
				}
			}
		})
	}
}

func TestClient_Stream_RequestParams(t *testing.T) {
	tests := []struct {
		name      string
		params    ChatParams
		wantModel string
		wantMax   int
		wantTemp  *float32
	}{
		{name: "explicit params", params: ChatParams{Model: "custom-model", MaxTokens: 100, Temperature: 0.7}, wantModel: "custom-model", wantMax: 100, wantTemp: ptr(float32(0.7))},
		{name: "client default model", params: ChatParams{}, wantModel: "test-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ChatRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&req) // Ignore decode error in test
				sseHandler("ok")(w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			messages := []Message{
				{Role: "system", Content: "Answer from the listings"},
				{Role: "user", Content: "Hello"},
			}
			for _, err := range client.Stream(context.Background(), messages, tt.params) {
				if err != nil {
					t.Fatalf("Stream() error = %v", err)
				}
			}

			if !req.Stream || len(req.Messages) != 2 {
				t.Errorf("request stream=%v messages=%d, want true/2", req.Stream, len(req.Messages))
			}
			if req.Model != tt.wantModel || req.MaxTokens != tt.wantMax {
				t.Errorf("request params = %s/%d, want %s/%d", req.Model, req.MaxTokens, tt.wantModel, tt.wantMax)
			}
			switch {
			case tt.wantTemp == nil && req.Temperature != nil:
				t.Errorf("request temperature = %v, want omitted", *req.Temperature)
			case tt.wantTemp != nil && (req.Temperature == nil || *req.Temperature != *tt.wantTemp):
				t.Errorf("request temperature = %v, want %v", req.Temperature, *tt.wantTemp)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func sseHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"" + c + "\"}}]}\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}
}

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(sseHandler("The", " roof", " is", " new"))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	var got strings.Builder
	for tok, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "roof?"}}, ChatParams{}) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		got.WriteString(tok)
	}
	if got.String() != "The roof is new" {
		t.Errorf("Stream() = %q, want %q", got.String(), "The roof is new")
	}
}

func TestClient_Stream_StopEarly(t *testing.T) {
	server := httptest.NewServer(sseHandler("a", "b", "c", "d"))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	var tokens []string
	for tok, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatParams{}) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		tokens = append(tokens, tok)
		if len(tokens) == 2 {
			break
		}
	}
	if len(tokens) != 2 {
		t.Errorf("Stream() yielded %d tokens after break, want 2", len(tokens))
	}
}

func TestClient_Stream_YieldsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad prompt"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	var gotErr error
	count := 0
	for _, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatParams{}) {
		count++
		gotErr = err
	}
	if count != 1 {
		t.Errorf("Stream() yielded %d elements, want 1", count)
	}
	var se *StatusError
	if !errors.As(gotErr, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("Stream() error = %v, want StatusError 400", gotErr)
	}
}

func TestClient_Stream_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ok := sseHandler("ok")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	client.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	var reply strings.Builder
	for tok, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatParams{}) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		reply.WriteString(tok)
	}
	if reply.String() != "ok" || calls.Load() != 2 {
		t.Errorf("Stream() = %q after %d calls, want ok after 2", reply.String(), calls.Load())
	}
}

func TestClient_Stream_ResponseTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model",
		WithResponseTimeout(50*time.Millisecond),
		WithChatRetry(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)

	start := time.Now()
	var gotErr error
	for _, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatParams{}) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("Stream() error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stream() took %v, want the response timeout to apply", elapsed)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestClient_Stream_SlowBodyOutlivesResponseTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for _, tok := range []string{"slate", " roof", " from", " 2019"} {
			time.Sleep(40 * time.Millisecond)
			data, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"delta": map[string]string{"content": tok}}}})
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model", WithResponseTimeout(50*time.Millisecond))
	var got strings.Builder
	for tok, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "roof?"}}, ChatParams{}) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		got.WriteString(tok)
	}
	if got.String() != "slate roof from 2019" {
		t.Errorf("Stream() = %q, want %q", got.String(), "slate roof from 2019")
	}
}

func TestNewClient_Options(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4}
	client := NewClient("http://localhost:8081", "k", "m", WithResponseTimeout(time.Second), WithChatRetry(policy))
	if client.Retry != policy {
		t.Errorf("Retry = %+v, want %+v", client.Retry, policy)
	}
	if client.client == http.DefaultClient {
		t.Fatal("WithResponseTimeout() kept the default HTTP client")
	}
	transport, ok := client.client.Transport.(*http.Transport)
	if !ok || transport.ResponseHeaderTimeout != time.Second {
		t.Errorf("transport = %#v, want ResponseHeaderTimeout 1s", client.client.Transport)
	}
	if client.client.Timeout != 0 {
		t.Errorf("client timeout = %v, want none so long streams are not cut", client.client.Timeout)
	}
}
