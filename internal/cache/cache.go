// Package cache memoizes deterministic completion responses.
//
// A request is only eligible when its temperature is explicitly zero. The
// cache key is the exact JSON encoding of the request, so any difference in
// model, messages or parameters produces a distinct entry. There is no
// eviction; the last write for a key wins.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flemzord/parley/internal/metrics"
	"github.com/flemzord/parley/internal/provider"
)

// FetchFunc performs the remote call on a cache miss.
type FetchFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)

// ResolveOptions controls a single resolution.
type ResolveOptions struct {
	// SkipCache performs the remote call without reading or writing the store.
	SkipCache bool

	// UpdateCache performs the remote call even when an entry exists and
	// overwrites it with the fresh response.
	UpdateCache bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Logs are discarded when omitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records lookup results on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache resolves requests against a Store. A nil *Cache behaves as a
// disabled cache: every resolution goes straight to the fetch function.
type Cache struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Key returns the cache key for req.
func Key(req provider.CompletionRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("cache: encode key: %w", err)
	}
	return string(data), nil
}

// Eligible reports whether req may be served from or written to the cache.
func Eligible(req provider.CompletionRequest) bool {
	return req.Temperature != nil && *req.Temperature == 0
}

// Lookup returns the response stored under key.
func (c *Cache) Lookup(ctx context.Context, key string) (provider.CompletionResponse, bool, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return provider.CompletionResponse{}, false, fmt.Errorf("%w: get: %w", ErrStore, err)
	}
	if !ok {
		return provider.CompletionResponse{}, false, nil
	}

	var resp provider.CompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return provider.CompletionResponse{}, false, fmt.Errorf("%w: decode entry: %w", ErrStore, err)
	}
	return resp, true, nil
}

// Store writes resp under key, replacing any existing entry.
func (c *Cache) Store(ctx context.Context, key string, resp provider.CompletionResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("%w: encode entry: %w", ErrStore, err)
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: put: %w", ErrStore, err)
	}
	return nil
}

// Stats summarizes the backing store when it supports it.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	sr, ok := c.store.(StatsReporter)
	if !ok {
		return Stats{}, fmt.Errorf("cache: store %T does not report stats", c.store)
	}
	st, err := sr.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStore, err)
	}
	return st, nil
}

// Resolve returns the response for req, consulting the store when req is
// eligible. Errors returned by fetch pass through unchanged; store failures
// wrap ErrStore.
func (c *Cache) Resolve(ctx context.Context, req provider.CompletionRequest, opts ResolveOptions, fetch FetchFunc) (provider.CompletionResponse, error) {
	if c == nil || opts.SkipCache || !Eligible(req) {
		if c != nil {
			c.metrics.ObserveCache(metrics.CacheBypass)
		}
		return fetch(ctx, req)
	}

	key, err := Key(req)
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	result := metrics.CacheRefresh
	if !opts.UpdateCache {
		resp, ok, err := c.Lookup(ctx, key)
		if err != nil {
			return provider.CompletionResponse{}, err
		}
		if ok {
			c.metrics.ObserveCache(metrics.CacheHit)
			c.logger.Debug("cache hit", "model", req.Model, "key_bytes", len(key))
			resp.FromCache = true
			return resp, nil
		}
		result = metrics.CacheMiss
	}

	resp, err := fetch(ctx, req)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	c.metrics.ObserveCache(result)

	if err := c.Store(ctx, key, resp); err != nil {
		return provider.CompletionResponse{}, err
	}
	c.logger.Debug("cache stored", "model", req.Model, "key_bytes", len(key), "result", result)
	return resp, nil
}
