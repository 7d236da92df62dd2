package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables, and
// decodes it over Default(). Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML over Default(). Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("expanding variables: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} in raw. A set variable
// wins over its default, even when empty. Every variable left unresolved
// is reported, once.
func expandEnv(raw []byte) ([]byte, error) {
	var (
		out     bytes.Buffer
		last    int
		missing []string
	)
	for _, m := range envPattern.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:m[0]])
		last = m[1]

		name := string(raw[m[2]:m[3]])
		switch value, ok := os.LookupEnv(name); {
		case ok:
			out.WriteString(value)
		case m[4] >= 0:
			out.Write(raw[m[4]:m[5]])
		default:
			out.Write(raw[m[0]:m[1]])
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
		}
	}
	out.Write(raw[last:])

	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out.Bytes(), nil
}
