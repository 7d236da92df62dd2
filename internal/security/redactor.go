package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|apikey|credential)`)

// Redactor scrubs secrets from strings. It knows the common OpenAI key
// formats and any literal values registered at runtime.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers a value to redact wherever it appears.
// Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	// Literals first: a registered key may not match any pattern.
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks a decoded document in place. Values under secret-looking
// keys are replaced outright; every other string is passed through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for i, item := range val {
				switch sub := item.(type) {
				case map[string]any:
					r.RedactMap(sub)
				case string:
					val[i] = r.Redact(sub)
				}
			}
		case string:
			m[k] = r.Redact(val)
		}
	}
}

// DefaultPatterns returns patterns for OpenAI API keys and bearer tokens.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Project, service-account and legacy keys: sk-proj-..., sk-svcacct-..., sk-...
		regexp.MustCompile(`sk-(?:proj-|svcacct-|admin-)?[A-Za-z0-9_\-]{20,}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.=]{16,}`),
	}
}
