package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/parley/internal/provider"
	"github.com/flemzord/parley/internal/provider/providertest"
	"github.com/flemzord/parley/internal/transcript"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestSession(t *testing.T, p *providertest.MockProvider, cfg Config, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	s, err := New(context.Background(), p, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

// echoProvider answers every Complete with "re: <last user message>".
func echoProvider() *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			last := req.Messages[len(req.Messages)-1]
			return provider.CompletionResponse{Content: "re: " + last.Content, FinishReason: provider.FinishReasonStop}, nil
		},
	}
}

// fillTurns asks n/2 questions so the context grows by n messages.
func fillTurns(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 0; i < n; i += 2 {
		if _, err := s.Ask(context.Background(), "q"); err != nil {
			t.Fatal(err)
		}
	}
}

// memTranscript collects exchanges in memory.
type memTranscript struct {
	mu        sync.Mutex
	exchanges []transcript.Exchange
	err       error
}

func (m *memTranscript) Append(_ context.Context, e transcript.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, e)
	return m.err
}

func (m *memTranscript) all() []transcript.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcript.Exchange(nil), m.exchanges...)
}

func temp(v float64) *float64 { return &v }
