// Package session holds one conversation with a chat model: the message
// context sent with every request, the base context restored on reset, and
// a history of request/response records.
//
// Ask and AskStream calls on one Session are serialized. Reading the
// context or pruning it does not wait for an answer in flight.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/parley/internal/cache"
	"github.com/flemzord/parley/internal/metrics"
	"github.com/flemzord/parley/internal/provider"
	"github.com/flemzord/parley/internal/security"
	"github.com/flemzord/parley/internal/transcript"
)

// Defaults for the system preamble.
const (
	DefaultAssistantName   = "ChatGPT"
	DefaultKnowledgeCutoff = "2021-09-01"
)

// Config holds the per-conversation settings.
type Config struct {
	// Model is the model identifier. Defaults to the provider's model.
	Model string

	AssistantName   string
	KnowledgeCutoff string

	// Temperature is sent with every request unless overridden per call.
	Temperature *float64

	// MaxTokens caps each answer unless overridden per call.
	MaxTokens int
}

// Record is one entry of the session history.
type Record struct {
	Request  provider.CompletionRequest
	Response provider.CompletionResponse
	Streamed bool
	// FromCache is set when Response came from the response cache.
	FromCache bool
}

// Transcript receives every printed exchange.
type Transcript interface {
	Append(ctx context.Context, e transcript.Exchange) error
}

// Option configures optional Session behavior.
type Option func(*Session)

// WithCache attaches a response cache. Without one every Ask goes remote.
func WithCache(c *cache.Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithLogger sets the logger. Logs are discarded when omitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records request and stream instruments on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracer wraps every ask in a span from tp.
func WithTracer(tp trace.TracerProvider) Option {
	return func(s *Session) { s.tracer = tp.Tracer("github.com/flemzord/parley/internal/session") }
}

// WithTranscript logs printed exchanges to t.
func WithTranscript(t Transcript) Option {
	return func(s *Session) { s.transcript = t }
}

// WithClock overrides the time source used for the preamble date and
// latency measurements.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithEstimator replaces the token estimator used by EstimateTokens.
func WithEstimator(e TokenEstimator) Option {
	return func(s *Session) { s.estimator = e }
}

// Session is one conversation. Create it with New.
type Session struct {
	id       string
	config   Config
	provider provider.Provider

	cache      *cache.Cache
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	transcript Transcript
	now        func() time.Time
	estimator  TokenEstimator

	// askMu serializes Ask and AskStream.
	askMu sync.Mutex

	mu      sync.Mutex
	model   string
	context []provider.LLMMessage
	base    []provider.LLMMessage
	history []Record
	// gen changes whenever the context is replaced wholesale, so an answer
	// in flight can tell that its messages are gone.
	gen uint64
}

// New verifies the provider credential when the provider supports it,
// then returns an initialized Session.
func New(ctx context.Context, p provider.Provider, cfg Config, opts ...Option) (*Session, error) {
	if hc, ok := p.(provider.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", security.ErrCredential, err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = p.ModelName()
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = DefaultAssistantName
	}
	if cfg.KnowledgeCutoff == "" {
		cfg.KnowledgeCutoff = DefaultKnowledgeCutoff
	}

	s := &Session{
		id:       id.String(),
		config:   cfg,
		provider: p,
		model:    cfg.Model,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.estimator == nil {
		s.estimator = NewCharEstimator(4)
	}
	s.logger = s.logger.With("session", s.id)

	s.Initialize()
	s.logger.Debug("session started", "model", s.model)
	return s, nil
}

// ID returns the session identifier (a UUIDv7).
func (s *Session) ID() string {
	return s.id
}

// Model returns the current model identifier.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// condense collapses every whitespace run to one space and trims the ends.
func condense(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func (s *Session) preamble() string {
	return condense(fmt.Sprintf(`
		You are %s, a large language model trained by OpenAI.
		Answer as concisely as possible.
		Knowledge cutoff: %s
		Current date: %s
	`, s.config.AssistantName, s.config.KnowledgeCutoff, s.now().Format(time.DateOnly)))
}

// Initialize replaces the context with the system preamble, snapshots it
// as the base context and clears the history.
func (s *Session) Initialize() {
	msg := provider.LLMMessage{Role: provider.MessageRoleSystem, Content: s.preamble()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = []provider.LLMMessage{msg}
	s.base = slices.Clone(s.context)
	s.history = nil
	s.gen++
	s.metrics.SetContextSize(len(s.context))
}

// Reset starts a new conversation on the current model.
func (s *Session) Reset() {
	s.Initialize()
	s.logger.Info("conversation reset")
}

// SetModel switches the model identifier and starts a new conversation.
func (s *Session) SetModel(model string) error {
	if model == "" {
		return ErrEmptyModel
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	s.Initialize()
	s.logger.Info("model switched", "model", model)
	return nil
}

// AppendMessage adds one message to the end of the context.
func (s *Session) AppendMessage(role provider.MessageRole, content string) error {
	if _, err := provider.ParseMessageRole(string(role)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRole, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = append(s.context, provider.LLMMessage{Role: role, Content: content})
	s.metrics.SetContextSize(len(s.context))
	return nil
}

// Context returns a copy of the current context.
func (s *Session) Context() []provider.LLMMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.context)
}

// BaseContext returns a copy of the base context.
func (s *Session) BaseContext() []provider.LLMMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.base)
}

// History returns a copy of the history records, oldest first.
func (s *Session) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.history))
	for i, r := range s.history {
		r.Request.Messages = slices.Clone(r.Request.Messages)
		out[i] = r
	}
	return out
}

// EstimateTokens approximates the token size of the current context.
func (s *Session) EstimateTokens() int {
	return estimateMessages(s.estimator, s.Context())
}
