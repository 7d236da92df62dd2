package openai

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flemzord/parley/internal/provider"
)

const (
	// maxResponseSize caps how much of a response body is read (10 MB).
	maxResponseSize = 10 << 20

	// streamBuffer is the capacity of the chunk channel returned by Stream.
	streamBuffer = 64

	completionsPath = "/chat/completions"
	modelsPath      = "/models"
)

// firstSet returns the first non-nil pointer, or nil.
func firstSet[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// request merges req with the configured defaults. Values set on the
// request always win.
func (p *Provider) request(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:       cmp.Or(req.Model, p.config.Model),
		Messages:    toMessages(req.Messages),
		MaxTokens:   cmp.Or(req.MaxTokens, p.config.MaxTokens),
		Temperature: firstSet(req.Temperature, p.config.Temperature),
		TopP:        firstSet(req.TopP, p.config.TopP),
		Stop:        req.Stop,
		Stream:      stream,
	}
	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return cr
}

// send issues an authenticated request. A nil payload is sent as GET,
// anything else is JSON-encoded and POSTed. Non-2xx answers are drained
// and returned as *APIError; on success the caller owns the body.
func (p *Provider) send(ctx context.Context, client *http.Client, path string, payload any) (*http.Response, error) {
	method, body := http.MethodGet, io.Reader(nil)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("openai: encode request: %w", err)
		}
		method, body = http.MethodPost, bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode/100 != 2 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return resp, nil
}

// decode reads a bounded JSON body into v and closes it.
func decode(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(v); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// Complete sends a non-streaming completion request.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	cr := p.request(req, false)
	start := time.Now()

	resp, err := p.send(ctx, p.client, completionsPath, cr)
	if err != nil {
		p.logger.Debug("completion failed", "model", cr.Model, "error", err)
		return provider.CompletionResponse{}, err
	}
	var out chatResponse
	if err := decode(resp, &out); err != nil {
		return provider.CompletionResponse{}, err
	}

	p.logger.Debug("completion received",
		"model", cr.Model,
		"messages", len(cr.Messages),
		"total_tokens", out.Usage.TotalTokens,
		"duration", time.Since(start),
	)
	return fromResponse(&out), nil
}

// Stream opens a streaming completion. Failures to connect, and error
// statuses, are returned directly; later failures arrive as
// StreamChunk.Err. Cancelling ctx tears the stream down.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	cr := p.request(req, true)

	resp, err := p.send(ctx, p.streamClient, completionsPath, cr)
	if err != nil {
		p.logger.Debug("stream rejected", "model", cr.Model, "error", err)
		return nil, err
	}
	p.logger.Debug("stream opened", "model", cr.Model, "messages", len(cr.Messages))

	ch := make(chan provider.StreamChunk, streamBuffer)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// HealthCheck lists the models visible to the key. It proves the
// credential works without spending completion tokens.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.send(ctx, p.client, modelsPath, nil)
	if err != nil {
		return err
	}
	var models modelList
	if err := decode(resp, &models); err != nil {
		return err
	}
	p.logger.Debug("credentials verified", "models", len(models.Data))
	return nil
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.config.Model
}
