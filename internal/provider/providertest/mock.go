// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/parley/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc      func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc   func() string
	HealthCheckFunc func(ctx context.Context) error

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	HealthCalls   int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock-model".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock-model"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
// A nil HealthCheckFunc reports healthy.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Calls returns the number of Complete and Stream invocations so far.
func (m *MockProvider) Calls() (complete, stream int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls, m.StreamCalls
}

// Reply returns a CompleteFunc that always answers with content.
func Reply(content string) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{Content: content, FinishReason: provider.FinishReasonStop}, nil
	}
}

// Fragments returns a StreamFunc that emits each fragment as a content chunk
// followed by a stop chunk. Sending honours ctx cancellation.
func Fragments(fragments ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk)
		go func() {
			defer close(ch)
			for _, f := range fragments {
				select {
				case ch <- provider.StreamChunk{Content: f}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop}:
			case <-ctx.Done():
			}
		}()
		return ch, nil
	}
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
