package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/parley/internal/cache"
	"github.com/flemzord/parley/internal/metrics"
	"github.com/flemzord/parley/internal/provider"
)

// AskOption adjusts a single Ask or AskStream call.
type AskOption func(*askOptions)

type askOptions struct {
	reset       bool
	skipCache   bool
	updateCache bool
	temperature *float64
	maxTokens   int
	topP        *float64
	stop        []string
}

// WithReset restores the base context before the query is appended.
func WithReset() AskOption {
	return func(o *askOptions) { o.reset = true }
}

// WithSkipCache bypasses the response cache for this call.
func WithSkipCache() AskOption {
	return func(o *askOptions) { o.skipCache = true }
}

// WithUpdateCache forces a remote call and overwrites the cached entry.
func WithUpdateCache() AskOption {
	return func(o *askOptions) { o.updateCache = true }
}

// WithTemperature overrides the configured temperature.
func WithTemperature(t float64) AskOption {
	return func(o *askOptions) { o.temperature = &t }
}

// WithMaxTokens overrides the configured answer length cap.
func WithMaxTokens(n int) AskOption {
	return func(o *askOptions) { o.maxTokens = n }
}

// WithTopP sets nucleus sampling for this call.
func WithTopP(p float64) AskOption {
	return func(o *askOptions) { o.topP = &p }
}

// WithStop sets stop sequences for this call.
func WithStop(seqs ...string) AskOption {
	return func(o *askOptions) { o.stop = seqs }
}

func collectOptions(opts []AskOption) askOptions {
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// begin applies the reset option, appends the user query and builds the
// request. The returned undo restores the context as it was before begin,
// unless it has since been replaced.
func (s *Session) begin(query string, o askOptions) (provider.CompletionRequest, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := slices.Clone(s.context)
	gen := s.gen

	if o.reset {
		s.context = slices.Clone(s.base)
	}
	s.context = append(s.context, provider.LLMMessage{Role: provider.MessageRoleUser, Content: query})
	s.metrics.SetContextSize(len(s.context))

	req := provider.CompletionRequest{
		Model:       s.model,
		Messages:    slices.Clone(s.context),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		TopP:        o.topP,
		Stop:        o.stop,
	}
	if o.temperature != nil {
		req.Temperature = o.temperature
	}
	if o.maxTokens > 0 {
		req.MaxTokens = o.maxTokens
	}

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.context = prev
		s.metrics.SetContextSize(len(s.context))
	}
	return req, undo
}

// transportError classifies and wraps a provider failure.
func (s *Session) transportError(err error) error {
	kind := provider.Kind(err)
	s.metrics.ObserveTransportError(kind)
	s.logger.Warn("remote call failed", "kind", kind, "error", err)
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func (s *Session) fetch(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return provider.CompletionResponse{}, s.transportError(err)
	}
	return resp, nil
}

func (s *Session) startSpan(ctx context.Context, name string, req provider.CompletionRequest) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("session.id", s.id),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	}
	if req.Temperature != nil {
		attrs = append(attrs, attribute.Float64("llm.temperature", *req.Temperature))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Ask sends query with the current context and returns the answer text.
// The answer is appended to the context. On failure the context is
// restored to its state before the call.
func (s *Session) Ask(ctx context.Context, query string, opts ...AskOption) (text string, err error) {
	o := collectOptions(opts)

	s.askMu.Lock()
	defer s.askMu.Unlock()

	start := s.now()
	req, undo := s.begin(query, o)

	ctx, span := s.startSpan(ctx, "session.ask", req)
	defer func() { endSpan(span, err) }()

	resp, err := s.cache.Resolve(ctx, req, cache.ResolveOptions{
		SkipCache:   o.skipCache,
		UpdateCache: o.updateCache,
	}, s.fetch)
	if err != nil {
		undo()
		s.metrics.ObserveRequest(metrics.ModeAsk, metrics.OutcomeError, s.now().Sub(start))
		return "", err
	}

	span.SetAttributes(
		attribute.Bool("cache.hit", resp.FromCache),
		attribute.Int("llm.total_tokens", resp.Usage.TotalTokens),
	)

	s.mu.Lock()
	s.context = append(s.context, provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: resp.Content})
	s.history = append(s.history, Record{Request: req, Response: resp, FromCache: resp.FromCache})
	s.metrics.SetContextSize(len(s.context))
	s.mu.Unlock()

	s.metrics.ObserveRequest(metrics.ModeAsk, metrics.OutcomeOK, s.now().Sub(start))
	s.logger.Debug("answer received",
		"model", req.Model,
		"from_cache", resp.FromCache,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Content, nil
}

// AskStream returns an iterator over the answer fragments. Nothing is sent
// until iteration starts. Streamed answers are never cached.
//
// The assistant message is appended when the stream opens and grows with
// every fragment, so an interrupted answer stays in the context. Breaking
// out of the loop cancels the underlying request. If the stream cannot be
// opened the iterator yields one error and the context is restored. A
// failure after the stream opened yields the error and keeps the partial
// message.
func (s *Session) AskStream(ctx context.Context, query string, opts ...AskOption) iter.Seq2[string, error] {
	o := collectOptions(opts)

	return func(yield func(string, error) bool) {
		s.askMu.Lock()
		defer s.askMu.Unlock()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := s.now()
		req, undo := s.begin(query, o)

		ctx, span := s.startSpan(ctx, "session.ask_stream", req)
		var spanErr error
		defer func() { endSpan(span, spanErr) }()

		ch, err := s.provider.Stream(ctx, req)
		if err != nil {
			undo()
			spanErr = s.transportError(err)
			s.metrics.ObserveRequest(metrics.ModeStream, metrics.OutcomeError, s.now().Sub(start))
			yield("", spanErr)
			return
		}

		s.mu.Lock()
		s.context = append(s.context, provider.LLMMessage{Role: provider.MessageRoleAssistant})
		idx, gen := len(s.context)-1, s.gen
		s.metrics.SetContextSize(len(s.context))
		s.mu.Unlock()

		var (
			text      strings.Builder
			resp      = provider.CompletionResponse{Model: req.Model}
			outcome   = metrics.OutcomeOK
			fragments int
		)
		defer func() {
			resp.Content = text.String()
			s.mu.Lock()
			s.history = append(s.history, Record{Request: req, Response: resp, Streamed: true})
			s.mu.Unlock()

			span.SetAttributes(attribute.Int("llm.fragments", fragments))
			s.metrics.ObserveRequest(metrics.ModeStream, outcome, s.now().Sub(start))
			s.logger.Debug("stream finished", "model", req.Model, "fragments", fragments, "outcome", outcome)
		}()

		for chunk := range ch {
			if ctx.Err() != nil {
				break
			}
			if chunk.Err != nil {
				outcome = metrics.OutcomeError
				spanErr = s.transportError(chunk.Err)
				yield("", spanErr)
				return
			}
			if chunk.Usage != nil {
				resp.Usage = *chunk.Usage
			}
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if chunk.Content == "" {
				continue
			}

			s.extend(idx, gen, chunk.Content)
			text.WriteString(chunk.Content)
			fragments++
			s.metrics.ObserveFragment()

			if !yield(chunk.Content, nil) {
				outcome = metrics.OutcomeCancelled
				return
			}
		}

		// The channel also closes when ctx is cancelled; report that to the
		// consumer so it can tell a cut answer from a complete one.
		if err := ctx.Err(); err != nil {
			outcome = metrics.OutcomeCancelled
			spanErr = err
			yield("", err)
		}
	}
}

// extend appends text to the assistant message at idx, unless the context
// was replaced or pruned past it since the stream opened.
func (s *Session) extend(idx int, gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || idx >= len(s.context) || s.context[idx].Role != provider.MessageRoleAssistant {
		return
	}
	s.context[idx].Content += text
}

// IsInterrupted reports whether err comes from a cancelled context.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
