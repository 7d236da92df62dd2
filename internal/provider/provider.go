// Package provider defines the Provider interface for communicating with a
// hosted chat completion service, together with the message and request
// types shared by the session, the response cache and the transports.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g., modules/provider/openai).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err. The channel is closed when the
	// stream ends or ctx is cancelled.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the default model identifier of the provider.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to verify credentials before a session starts.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
