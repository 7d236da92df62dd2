// Package openai implements the OpenAI Chat Completions transport, with
// streaming over server-sent events.
package openai

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/flemzord/parley/internal/provider"
)

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Option configures optional Provider behavior.
type Option func(*Provider)

// WithLogger injects a structured logger. When omitted, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithHTTPClient replaces both the request and the streaming HTTP clients.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
		p.streamClient = c
	}
}

// Provider implements the OpenAI Chat Completions API.
type Provider struct {
	config       Config
	logger       *slog.Logger
	client       *http.Client
	streamClient *http.Client
}

// New validates cfg, applies defaults and returns a ready Provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{config: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	// http.Client.Timeout is a hard deadline for the entire response body,
	// which would kill long-lived SSE streams. The streaming client uses no
	// timeout; cancellation is handled via context.
	if p.client == nil {
		p.client = &http.Client{Timeout: cfg.parsedTimeout()}
	}
	if p.streamClient == nil {
		p.streamClient = &http.Client{}
	}

	return p, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("provider.openai: api_key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("provider.openai: model is required"))
	}
	if err := c.validateTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
