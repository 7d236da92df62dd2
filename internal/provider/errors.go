package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuth indicates the provider rejected the credentials.
	ErrAuth = errors.New("provider authentication failed")
)

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// Kind returns a short label for the provider error class of err, suitable
// for metric labels and log attributes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrContextLength):
		return "context_length"
	case errors.Is(err, ErrProviderDown):
		return "unavailable"
	default:
		return "other"
	}
}
