package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the configuration file searched for by Discover.
const FileName = "parley.yaml"

// SearchPaths lists candidate configuration files in priority order:
// $XDG_CONFIG_HOME/parley/parley.yaml, ~/.config/parley/parley.yaml,
// ./parley.yaml.
func SearchPaths() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "parley", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "parley", FileName))
	}
	return append(candidates, FileName)
}

// Discover returns the first existing file from SearchPaths, or "" when
// none exists.
func Discover() (string, error) {
	for _, path := range SearchPaths() {
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	return "", nil
}

// Resolve loads the file at path, or the discovered file when path is
// empty. With no file at all it returns Default(). The second result is
// the file actually loaded.
func Resolve(path string) (*Config, string, error) {
	if path == "" {
		found, err := Discover()
		if err != nil {
			return nil, "", err
		}
		if found == "" {
			return Default(), "", nil
		}
		path = found
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
