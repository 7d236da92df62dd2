// Package gateway serves the local HTTP listener that exposes Prometheus
// metrics, a health probe and the state of the running session.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/parley/internal/cache"
	"github.com/flemzord/parley/internal/provider"
)

// SessionInfo is the read-only view of a session reported by /status.
type SessionInfo interface {
	ID() string
	Model() string
	Context() []provider.LLMMessage
	EstimateTokens() int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithGatherer mounts /metrics for the instruments registered on reg.
func WithGatherer(reg prometheus.Gatherer) Option {
	return func(g *Gateway) { g.gatherer = reg }
}

// WithSession reports s on /status.
func WithSession(s SessionInfo) Option {
	return func(g *Gateway) { g.session = s }
}

// WithProbe makes /health verify the remote credential.
func WithProbe(p provider.HealthChecker) Option {
	return func(g *Gateway) { g.probe = p }
}

// WithCacheStats reports the response cache size on /status and /health.
func WithCacheStats(c cache.StatsReporter) Option {
	return func(g *Gateway) { g.cache = c }
}

// Gateway is the HTTP listener. The zero value is not usable; call New.
type Gateway struct {
	config   Config
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	session  SessionInfo
	probe    provider.HealthChecker
	cache    cache.StatsReporter

	mu        sync.Mutex
	server    *http.Server
	addr      net.Addr
	startedAt time.Time
}

// New returns a Gateway for cfg. Zero config fields take defaults.
func New(cfg Config, opts ...Option) *Gateway {
	cfg.defaults()
	g := &Gateway{config: cfg, startedAt: time.Now()}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// Start binds the listen address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Listen)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.config.Listen, err)
	}

	g.startedAt = time.Now()
	g.addr = ln.Addr()
	g.server = &http.Server{
		Handler:      g.Handler(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	srv := g.server
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop shuts the listener down, waiting at most the configured shutdown
// timeout for in-flight requests.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.server = nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(ctx)
}
