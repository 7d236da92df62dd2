package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/parley/internal/provider"
)

// APIError is a non-2xx answer from the API. It unwraps to the provider
// sentinel matching its class, if any, so callers can test it with
// errors.Is(err, provider.ErrRateLimit) and friends.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "openai: HTTP %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the provider sentinel for the error class, or nil.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return provider.ErrAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return provider.ErrRateLimit
	case e.StatusCode == http.StatusBadRequest && e.contextLength():
		return provider.ErrContextLength
	case e.StatusCode >= 500:
		return provider.ErrProviderDown
	default:
		return nil
	}
}

func (e *APIError) contextLength() bool {
	if e.Code == "context_length_exceeded" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "context_length") || strings.Contains(msg, "maximum context length")
}

// newAPIError builds an APIError from a response body. Bodies that are not
// the JSON error envelope are kept verbatim as the message.
func newAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode}
	var env apiError
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Type = env.Error.Type
		e.Code = env.Error.Code
		e.Message = env.Error.Message
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	return e
}

// transportError classifies a failure to reach the API. Context errors
// pass through unchanged so callers can tell an interruption apart.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
