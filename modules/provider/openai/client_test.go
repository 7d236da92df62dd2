package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/parley/internal/provider"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{
		APIKey:  "sk-test",
		Model:   "gpt-4",
		BaseURL: srv.URL,
	}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readRequestBody(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	return req
}

func writeSSE(t *testing.T, w http.ResponseWriter, chunks []string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	for _, c := range chunks {
		if _, err := w.Write([]byte(c + "\n\n")); err != nil {
			t.Errorf("failed to write SSE chunk: %v", err)
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func okResponse(content string) chatResponse {
	return chatResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4-0613",
		Choices: []chatChoice{
			{
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: strPtr("stop"),
			},
		},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func userMessage(content string) []provider.LLMMessage {
	return []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: content}}
}

func TestComplete_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing content-type header")
		}

		req := readRequestBody(t, r)
		if req.Model != "gpt-4" {
			t.Errorf("model = %q, want gpt-4", req.Model)
		}
		if req.Stream {
			t.Error("stream should be false for Complete")
		}

		w.Header().Set("Content-Type", "application/json")
		writeJSON(t, w, okResponse("Hello!"))
	})

	p := newTestProvider(t, handler)
	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages: userMessage("Hi"),
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("content = %q, want Hello!", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("finish_reason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total_tokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if resp.ID != "chatcmpl-1" || resp.Model != "gpt-4-0613" {
		t.Errorf("id/model = %q/%q, want chatcmpl-1/gpt-4-0613", resp.ID, resp.Model)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{
			name:       "rate_limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit exceeded"}}`,
			wantErr:    provider.ErrRateLimit,
		},
		{
			name:       "context_length",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"This model's maximum context_length is 8192 tokens"}}`,
			wantErr:    provider.ErrContextLength,
		},
		{
			name:       "server_error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"Internal server error"}}`,
			wantErr:    provider.ErrProviderDown,
		},
		{
			name:       "auth_error",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"Invalid API key"}}`,
			wantErr:    provider.ErrAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.body)); err != nil {
					t.Errorf("failed to write error body: %v", err)
				}
			})

			p := newTestProvider(t, handler)
			_, err := p.Complete(context.Background(), provider.CompletionRequest{
				Messages: userMessage("Hi"),
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_UnmappedStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	p := newTestProvider(t, handler)
	_, err := p.Complete(context.Background(), provider.CompletionRequest{Messages: userMessage("Hi")})
	if err == nil || !strings.Contains(err.Error(), "HTTP 418") {
		t.Errorf("error = %v, want HTTP 418", err)
	}
}

func TestStream_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequestBody(t, r)

		if !req.Stream {
			t.Error("stream should be true for Stream")
		}
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("stream_options.include_usage should be true")
		}

		writeSSE(t, w, []string{
			`data: {"choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":" there"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
			`data: [DONE]`,
		})
	})

	p := newTestProvider(t, handler)
	ch, err := p.Stream(context.Background(), provider.CompletionRequest{
		Messages: userMessage("Hi"),
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var content strings.Builder
	var gotStop bool
	var lastUsage *provider.TokenUsage
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		content.WriteString(chunk.Content)
		if chunk.FinishReason == provider.FinishReasonStop {
			gotStop = true
		}
		if chunk.Usage != nil {
			lastUsage = chunk.Usage
		}
	}

	if content.String() != "Hello there" {
		t.Errorf("content = %q, want 'Hello there'", content.String())
	}
	if !gotStop {
		t.Error("expected stop finish_reason")
	}
	if lastUsage == nil || lastUsage.TotalTokens != 7 {
		t.Errorf("usage = %v, want total_tokens=7", lastUsage)
	}
}

func TestStream_HTTPError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`)); err != nil {
			t.Errorf("failed to write error body: %v", err)
		}
	})

	p := newTestProvider(t, handler)
	_, err := p.Stream(context.Background(), provider.CompletionRequest{
		Messages: userMessage("Hi"),
	})
	if !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("error = %v, want ErrRateLimit", err)
	}
}

func TestComplete_RequestOverrides(t *testing.T) {
	var receivedReq chatRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedReq = readRequestBody(t, r)
		writeJSON(t, w, okResponse("OK"))
	})

	configTemp := 0.5
	p := newTestProvider(t, handler)
	p.config.Temperature = &configTemp
	p.config.MaxTokens = 1000

	// Request-level override should win.
	reqTemp := 0.0
	_, err := p.Complete(context.Background(), provider.CompletionRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    userMessage("Hi"),
		Temperature: &reqTemp,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if receivedReq.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q, want gpt-3.5-turbo (request override)", receivedReq.Model)
	}
	if receivedReq.Temperature == nil || *receivedReq.Temperature != 0 {
		t.Errorf("temperature = %v, want 0 (request override)", receivedReq.Temperature)
	}
	if receivedReq.MaxTokens != 500 {
		t.Errorf("max_tokens = %d, want 500 (request override)", receivedReq.MaxTokens)
	}
}

func TestComplete_ConfigDefaults(t *testing.T) {
	var receivedReq chatRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedReq = readRequestBody(t, r)
		writeJSON(t, w, okResponse("OK"))
	})

	configTemp := 0.5
	p := newTestProvider(t, handler)
	p.config.Temperature = &configTemp
	p.config.MaxTokens = 1000

	// No request-level overrides, config defaults should be used.
	_, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages: userMessage("Hi"),
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if receivedReq.Model != "gpt-4" {
		t.Errorf("model = %q, want gpt-4 (config default)", receivedReq.Model)
	}
	if receivedReq.Temperature == nil || *receivedReq.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5 (config default)", receivedReq.Temperature)
	}
	if receivedReq.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want 1000 (config default)", receivedReq.MaxTokens)
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	p := newTestProvider(t, handler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages: userMessage("Hi"),
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestHealthCheck(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("health check = %s %s, want GET /models", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4"},{"id":"gpt-3.5-turbo"}]}`))
	})

	p := newTestProvider(t, handler)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
}

func TestHealthCheck_Unauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	})

	p := newTestProvider(t, handler)
	if err := p.HealthCheck(context.Background()); !errors.Is(err, provider.ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestModelName(t *testing.T) {
	p := &Provider{config: Config{Model: "gpt-4"}}
	if p.ModelName() != "gpt-4" {
		t.Errorf("ModelName() = %q, want gpt-4", p.ModelName())
	}
}

func strPtr(s string) *string { return &s }
