package session

import "errors"

var (
	// ErrTransport wraps every failure of the remote service. The provider
	// sentinel (provider.ErrRateLimit, provider.ErrAuth...) stays matchable
	// with errors.Is.
	ErrTransport = errors.New("session: transport failure")

	// ErrInvalidRole is returned by AppendMessage for an unknown role.
	ErrInvalidRole = errors.New("session: invalid message role")

	// ErrEmptyModel is returned by SetModel for an empty identifier.
	ErrEmptyModel = errors.New("session: empty model identifier")
)
