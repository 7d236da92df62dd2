package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/parley/internal/cache"
	"github.com/flemzord/parley/internal/provider"
)

// fakeSession is a fixed SessionInfo.
type fakeSession struct {
	id    string
	model string
	msgs  []provider.LLMMessage
}

func (s *fakeSession) ID() string                     { return s.id }
func (s *fakeSession) Model() string                  { return s.model }
func (s *fakeSession) Context() []provider.LLMMessage { return s.msgs }
func (s *fakeSession) EstimateTokens() int            { return 10 * len(s.msgs) }

// probeFunc adapts a function to provider.HealthChecker.
type probeFunc func(ctx context.Context) error

func (f probeFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// brokenStats always fails.
type brokenStats struct{}

func (brokenStats) Stats(context.Context) (cache.Stats, error) {
	return cache.Stats{}, cache.ErrStore
}

func get(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if v != nil {
		if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr.Code
}
