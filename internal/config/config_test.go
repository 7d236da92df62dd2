package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) error: %v", err)
	}
	if cfg.Provider.Model != "gpt-4" {
		t.Errorf("model = %q, want gpt-4", cfg.Provider.Model)
	}
	if cfg.Session.Models["3.5"] != "gpt-3.5-turbo" || cfg.Session.Models["4"] != "gpt-4" {
		t.Errorf("models = %v", cfg.Session.Models)
	}
	if cfg.Cache.Enabled {
		t.Error("cache must be opt-in")
	}
	if !cfg.Transcript.IsEnabled() || cfg.Transcript.Path != "openai.log" {
		t.Errorf("transcript = %+v", cfg.Transcript)
	}
}

func TestParse_OverDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
version: "1"
provider:
  model: gpt-3.5-turbo
  timeout: 90s
session:
  temperature: 0
  models:
    "4o": gpt-4o
cache:
  enabled: true
  path: /tmp/parley.cache
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Provider.Model != "gpt-3.5-turbo" || cfg.Provider.Timeout != "90s" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.BaseURL == "" || cfg.Provider.CredentialsFile != "~/.openai" {
		t.Errorf("unset provider keys must keep defaults: %+v", cfg.Provider)
	}
	if cfg.Session.Temperature == nil || *cfg.Session.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", cfg.Session.Temperature)
	}
	if cfg.Session.Models["4o"] != "gpt-4o" || cfg.Session.Models["3.5"] != "gpt-3.5-turbo" {
		t.Errorf("models must merge with defaults: %v", cfg.Session.Models)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Path != "/tmp/parley.cache" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Session.KnowledgeCutoff != DefaultKnowledgeCutoff {
		t.Errorf("knowledge_cutoff = %q, want default", cfg.Session.KnowledgeCutoff)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q, want default", cfg.Version)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("provider:\n  modle: gpt-4\n"))
	if err == nil || !strings.Contains(err.Error(), "modle") {
		t.Errorf("error = %v, want unknown field modle", err)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_MODEL", "gpt-4-turbo")

	cfg, err := Parse([]byte(`
provider:
  model: ${PARLEY_TEST_MODEL}
  base_url: ${PARLEY_TEST_UNSET_URL:-http://localhost:8080/v1}
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Provider.Model != "gpt-4-turbo" {
		t.Errorf("model = %q, want gpt-4-turbo", cfg.Provider.Model)
	}
	if cfg.Provider.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("base_url = %q, want default from expression", cfg.Provider.BaseURL)
	}
}

func TestParse_UnresolvedVariables(t *testing.T) {
	_, err := Parse([]byte("provider:\n  api_key: ${PARLEY_TEST_MISSING_A}\n  model: ${PARLEY_TEST_MISSING_B}\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"PARLEY_TEST_MISSING_A", "PARLEY_TEST_MISSING_B"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Version = "2"
	cfg.Provider.Model = ""
	cfg.Log.Level = "loud"
	cfg.Metrics.Listen = "not an address"
	neg := -1.0
	cfg.Session.Temperature = &neg

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"unsupported version", "provider.model", "log.level", "metrics.listen", "session.temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestValidate_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version field is required"},
		{"bad base url", func(c *Config) { c.Provider.BaseURL = "localhost" }, "provider.base_url"},
		{"bad timeout", func(c *Config) { c.Provider.Timeout = "-5s" }, "provider.timeout"},
		{"cache without path", func(c *Config) { c.Cache.Enabled = true; c.Cache.Path = "" }, "cache.path"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad tracing url", func(c *Config) { c.Tracing.Endpoint = "::" }, "tracing.endpoint"},
		{"empty alias target", func(c *Config) { c.Session.Models["5"] = "" }, "session.models"},
		{"negative max tokens", func(c *Config) { c.Session.MaxTokens = -1 }, "session.max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolve_Discovery(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	// Nothing on disk: defaults.
	cfg, path, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if path != "" || cfg.Provider.Model != DefaultModel {
		t.Errorf("path = %q, model = %q, want defaults", path, cfg.Provider.Model)
	}

	// Working directory file is found.
	writeConfig(t, ".", "provider:\n  model: from-cwd\n")
	cfg, path, err = Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if path != FileName || cfg.Provider.Model != "from-cwd" {
		t.Errorf("path = %q, model = %q, want cwd file", path, cfg.Provider.Model)
	}

	// XDG file wins over the working directory.
	dir := filepath.Join(xdg, "parley")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	xdgPath := writeConfig(t, dir, "provider:\n  model: from-xdg\n")
	cfg, path, err = Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if path != xdgPath || cfg.Provider.Model != "from-xdg" {
		t.Errorf("path = %q, model = %q, want xdg file", path, cfg.Provider.Model)
	}

	// An explicit path wins over discovery.
	explicit := writeConfig(t, t.TempDir(), "provider:\n  model: explicit\n")
	cfg, _, err = Resolve(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "explicit" {
		t.Errorf("model = %q, want explicit", cfg.Provider.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}

func TestWarnings(t *testing.T) {
	t.Parallel()

	zero, half := 0.0, 0.5
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantWarn bool
	}{
		{"defaults", func(*Config) {}, false},
		{"provider zero with cache", func(c *Config) {
			c.Cache.Enabled = true
			c.Provider.Temperature = &zero
		}, true},
		{"provider zero without cache", func(c *Config) {
			c.Provider.Temperature = &zero
		}, false},
		{"session zero with cache", func(c *Config) {
			c.Cache.Enabled = true
			c.Provider.Temperature = &zero
			c.Session.Temperature = &zero
		}, false},
		{"provider nonzero with cache", func(c *Config) {
			c.Cache.Enabled = true
			c.Provider.Temperature = &half
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			warns := Warnings(cfg)
			if got := len(warns) > 0; got != tt.wantWarn {
				t.Errorf("Warnings() = %q, want warning %v", warns, tt.wantWarn)
			}
			if err := Validate(cfg); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}
}
