// Package app assembles a parley session and the services around it from a
// validated configuration. The CLI commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/flemzord/parley/internal/cache"
	"github.com/flemzord/parley/internal/config"
	"github.com/flemzord/parley/internal/gateway"
	"github.com/flemzord/parley/internal/metrics"
	"github.com/flemzord/parley/internal/security"
	"github.com/flemzord/parley/internal/session"
	"github.com/flemzord/parley/internal/telemetry"
	"github.com/flemzord/parley/internal/transcript"
	"github.com/flemzord/parley/modules/cache/sqlite"
	"github.com/flemzord/parley/modules/provider/openai"
)

// Params carries process-level inputs that do not come from the config file.
type Params struct {
	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives diagnostic logs. Defaults to os.Stderr.
	LogOutput io.Writer

	// HTTPClient replaces the transport client, for tests.
	HTTPClient *http.Client
}

// App is a running session with its supporting services.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Session  *session.Session
	Provider *openai.Provider
	// Cache is nil when caching is disabled.
	Cache    *cache.Cache
	Registry *prometheus.Registry
	// Gateway is nil when metrics.listen is empty.
	Gateway *gateway.Gateway

	shutdown []telemetry.ShutdownFunc
}

// LoadConfig resolves, loads and validates the configuration. An empty
// path searches the standard locations. The returned path is empty when
// defaults were used.
func LoadConfig(path string) (*config.Config, string, error) {
	cfg, used, err := config.Resolve(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, used, err
	}
	return cfg, used, nil
}

// NewLogger builds the diagnostic logger. Auto format picks text when w is
// a terminal and JSON otherwise. Every record passes through redactor.
func NewLogger(w io.Writer, cfg config.LogConfig, redactor *security.Redactor) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}

	var inner slog.Handler
	switch format {
	case "text":
		inner = slog.NewTextHandler(w, opts)
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("log format %q: want auto, text or json", cfg.Format)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// OpenCache returns the response cache for cfg, or nil when it is disabled.
func OpenCache(cfg config.CacheConfig, logger *slog.Logger, m *metrics.Metrics) (*cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	storeCfg := cfg.Config
	path, err := security.ExpandHome(storeCfg.Path)
	if err != nil {
		return nil, err
	}
	storeCfg.Path = path

	store, err := sqlite.New(storeCfg, sqlite.WithLogger(logger.With("component", "cache.sqlite")))
	if err != nil {
		return nil, err
	}
	return cache.New(store,
		cache.WithLogger(logger.With("component", "cache")),
		cache.WithMetrics(m),
	), nil
}

// New resolves the API key, verifies it against the remote service and
// starts a session. Close must be called when done.
func New(ctx context.Context, cfg *config.Config, params Params) (_ *App, err error) {
	if params.LogOutput == nil {
		params.LogOutput = os.Stderr
	}

	key, source, err := security.ResolveAPIKey(cfg.Provider.APIKey, cfg.Provider.CredentialsFile)
	if err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	redactor.AddLiteral(key)
	logger, err := NewLogger(params.LogOutput, cfg.Log, redactor)
	if err != nil {
		return nil, err
	}
	logger.Debug("credential loaded", "source", source)
	for _, w := range config.Warnings(cfg) {
		logger.Warn("configuration", "warning", w)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry, cfg.Metrics.Namespace)

	tp, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     params.Version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.shutdown = append(a.shutdown, shutdown)

	provCfg := cfg.Provider.Config
	provCfg.APIKey = key
	provOpts := []openai.Option{openai.WithLogger(logger.With("component", "openai"))}
	if params.HTTPClient != nil {
		provOpts = append(provOpts, openai.WithHTTPClient(params.HTTPClient))
	}
	a.Provider, err = openai.New(provCfg, provOpts...)
	if err != nil {
		return nil, err
	}

	a.Cache, err = OpenCache(cfg.Cache, logger, m)
	if err != nil {
		return nil, err
	}

	sessOpts := []session.Option{
		session.WithLogger(logger.With("component", "session")),
		session.WithMetrics(m),
		session.WithTracer(tp),
	}
	if a.Cache != nil {
		sessOpts = append(sessOpts, session.WithCache(a.Cache))
	}
	if cfg.Transcript.IsEnabled() {
		path, err := security.ExpandHome(cfg.Transcript.Path)
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, session.WithTranscript(transcript.New(path)))
	}

	a.Session, err = session.New(ctx, a.Provider, session.Config{
		Model:           cfg.Provider.Model,
		AssistantName:   cfg.Session.AssistantName,
		KnowledgeCutoff: cfg.Session.KnowledgeCutoff,
		Temperature:     cfg.Session.Temperature,
		MaxTokens:       cfg.Session.MaxTokens,
	}, sessOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Listen != "" {
		gwOpts := []gateway.Option{
			gateway.WithLogger(logger.With("component", "gateway")),
			gateway.WithGatherer(a.Registry),
			gateway.WithSession(a.Session),
			gateway.WithProbe(a.Provider),
		}
		if a.Cache != nil {
			gwOpts = append(gwOpts, gateway.WithCacheStats(a.Cache))
		}
		a.Gateway = gateway.New(gateway.Config{Listen: cfg.Metrics.Listen}, gwOpts...)
		if err := a.Gateway.Start(ctx); err != nil {
			a.Gateway = nil
			return nil, err
		}
	}

	logger.Info("session ready",
		"session", a.Session.ID(),
		"model", a.Session.Model(),
		"cache", a.Cache != nil,
	)
	return a, nil
}

// Models returns the aliases accepted by the "model" command.
func (a *App) Models() map[string]string {
	if len(a.Config.Session.Models) == 0 {
		return config.DefaultModels()
	}
	return a.Config.Session.Models
}

// Close stops the gateway and flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Gateway != nil {
		if err := a.Gateway.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
		a.Gateway = nil
	}
	if err := telemetry.Shutdown(ctx, a.shutdown...); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	a.shutdown = nil
	return errors.Join(errs...)
}

// Shutdown calls Close and logs its error. Commands defer it once they no
// longer have anywhere to return an error to.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
}
