// Package config handles YAML configuration loading, environment variable
// expansion, discovery and validation for parley.
package config

import (
	"github.com/flemzord/parley/modules/cache/sqlite"
	"github.com/flemzord/parley/modules/provider/openai"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Provider   ProviderConfig   `yaml:"provider"`
	Session    SessionConfig    `yaml:"session"`
	Cache      CacheConfig      `yaml:"cache"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ProviderConfig configures the chat completions transport.
type ProviderConfig struct {
	openai.Config `yaml:",inline"`

	// CredentialsFile holds the API key when api_key and OPENAI_API_KEY are
	// both unset. Defaults to ~/.openai.
	CredentialsFile string `yaml:"credentials_file"`
}

// SessionConfig configures conversation behavior.
type SessionConfig struct {
	// KnowledgeCutoff is quoted in the system preamble.
	KnowledgeCutoff string `yaml:"knowledge_cutoff"`

	// AssistantName is quoted in the system preamble.
	AssistantName string `yaml:"assistant_name"`

	// Temperature is sent with every request unless overridden per call.
	// Only an explicit 0 makes responses eligible for caching.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps each answer. Zero leaves it to the service.
	MaxTokens int `yaml:"max_tokens"`

	// Models maps the argument of the "model" command to a model identifier.
	Models map[string]string `yaml:"models"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	sqlite.Config `yaml:",inline"`
}

// TranscriptConfig configures the append-only exchange log.
type TranscriptConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether exchanges are logged. Defaults to true.
func (c TranscriptConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is one of auto, text, json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// MetricsConfig configures the optional HTTP listener.
type MetricsConfig struct {
	// Listen is the address serving /metrics and /health. Empty disables it.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables export.
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default values.
const (
	DefaultModel           = "gpt-4"
	DefaultKnowledgeCutoff = "2021-09-01"
	DefaultAssistantName   = "ChatGPT"
	DefaultTranscriptPath  = "openai.log"
	DefaultServiceName     = "parley"
)

// DefaultModels are the aliases accepted by the "model" command.
func DefaultModels() map[string]string {
	return map[string]string{
		"3.5": "gpt-3.5-turbo",
		"4":   "gpt-4",
	}
}

// Default returns a configuration that works with only a credential file.
func Default() *Config {
	return &Config{
		Version: "1",
		Provider: ProviderConfig{
			Config: openai.Config{
				Model:   DefaultModel,
				BaseURL: openai.DefaultBaseURL,
				Timeout: "60s",
			},
			CredentialsFile: "~/.openai",
		},
		Session: SessionConfig{
			KnowledgeCutoff: DefaultKnowledgeCutoff,
			AssistantName:   DefaultAssistantName,
			Models:          DefaultModels(),
		},
		Cache: CacheConfig{
			Config: sqlite.Config{Path: sqlite.DefaultPath},
		},
		Transcript: TranscriptConfig{Path: DefaultTranscriptPath},
		Log:        LogConfig{Level: "info", Format: "auto"},
		Metrics:    MetricsConfig{Namespace: "parley"},
		Tracing:    TracingConfig{ServiceName: DefaultServiceName, SampleRatio: 1},
	}
}
