package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks the structural validity of a Config and reports every
// problem at once. The API key is not checked here; it may come from the
// environment or the credential file.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateProvider(cfg.Provider)...)
	errs = append(errs, validateSession(cfg.Session)...)

	if cfg.Cache.Enabled && cfg.Cache.Path == "" {
		errs = append(errs, errors.New("config: cache.path is required when the cache is enabled"))
	}
	if cfg.Cache.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: cache.busy_timeout must be non-negative, got %d", cfg.Cache.BusyTimeout))
	}
	if cfg.Transcript.IsEnabled() && cfg.Transcript.Path == "" {
		errs = append(errs, errors.New("config: transcript.path is required when the transcript is enabled"))
	}

	if !validLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Errorf("config: log.format %q must be one of auto, text, json", cfg.Log.Format))
	}

	if cfg.Metrics.Listen != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("config: metrics.listen: invalid address %q", cfg.Metrics.Listen))
		}
	}
	if cfg.Tracing.Endpoint != "" {
		if u, err := url.Parse(cfg.Tracing.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: tracing.endpoint: invalid URL %q", cfg.Tracing.Endpoint))
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: tracing.sample_ratio must be within [0, 1], got %v", cfg.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}

func validateProvider(p ProviderConfig) []error {
	var errs []error
	if p.Model == "" {
		errs = append(errs, errors.New("config: provider.model is required"))
	}
	if p.BaseURL != "" {
		if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: provider.base_url: invalid URL %q", p.BaseURL))
		}
	}
	if p.Timeout != "" {
		if d, err := time.ParseDuration(p.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("config: provider.timeout: invalid duration %q", p.Timeout))
		}
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		errs = append(errs, fmt.Errorf("config: provider.temperature must be within [0, 2], got %v", *p.Temperature))
	}
	return errs
}

func validateSession(s SessionConfig) []error {
	var errs []error
	if s.KnowledgeCutoff == "" {
		errs = append(errs, errors.New("config: session.knowledge_cutoff is required"))
	}
	if s.AssistantName == "" {
		errs = append(errs, errors.New("config: session.assistant_name is required"))
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		errs = append(errs, fmt.Errorf("config: session.temperature must be within [0, 2], got %v", *s.Temperature))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: session.max_tokens must be non-negative, got %d", s.MaxTokens))
	}
	for alias, model := range s.Models {
		if alias == "" || model == "" {
			errs = append(errs, fmt.Errorf("config: session.models: alias %q maps to %q", alias, model))
		}
	}
	return errs
}

// Warnings reports settings that are valid but likely not what the user
// meant. They never stop startup.
func Warnings(cfg *Config) []string {
	var warns []string
	// Only session.temperature becomes part of the request, and so of the
	// cache key; the provider default is applied after the cache lookup.
	if cfg.Cache.Enabled && cfg.Session.Temperature == nil && cfg.Provider.Temperature != nil && *cfg.Provider.Temperature == 0 {
		warns = append(warns, "provider.temperature is 0 but session.temperature is unset: requests carry no temperature and are never cached; set session.temperature: 0 instead")
	}
	return warns
}
