// Package security loads the API credential and keeps secrets out of logs.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCredential is returned when the API key cannot be loaded or is rejected
// by the remote service.
var ErrCredential = errors.New("security: invalid credential")

// DefaultCredentialFile holds the API key when none is configured.
const DefaultCredentialFile = "~/.openai"

// EnvAPIKey is consulted before the credential file.
const EnvAPIKey = "OPENAI_API_KEY"

// Credential sources reported by ResolveAPIKey.
const (
	SourceConfig = "config"
	SourceEnv    = "env"
	SourceFile   = "file"
)

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("security: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// LoadCredentialFile reads the API key stored at path. Surrounding
// whitespace is ignored; an empty file is an error.
func LoadCredentialFile(path string) (string, error) {
	resolved, err := ExpandHome(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCredential, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrCredential, resolved, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrCredential, resolved)
	}
	return key, nil
}

// WriteCredentialFile stores key at path with owner-only permissions,
// creating the parent directory if needed.
func WriteCredentialFile(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrCredential)
	}

	resolved, err := ExpandHome(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("security: create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(resolved, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("security: write %s: %w", resolved, err)
	}
	return nil
}

// ResolveAPIKey picks the API key from, in order: the explicit configured
// value, the OPENAI_API_KEY environment variable, the credential file.
// It returns the key and the name of the source it came from.
func ResolveAPIKey(explicit, file string) (key, source string, err error) {
	if k := strings.TrimSpace(explicit); k != "" {
		return k, SourceConfig, nil
	}
	if k := strings.TrimSpace(os.Getenv(EnvAPIKey)); k != "" {
		return k, SourceEnv, nil
	}
	if file == "" {
		file = DefaultCredentialFile
	}
	k, err := LoadCredentialFile(file)
	if err != nil {
		return "", "", err
	}
	return k, SourceFile, nil
}
