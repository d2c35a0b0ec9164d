package limsclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the LIMS client.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is an exported constant or variable used by the LIMS client.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired is an exported constant or variable used by the LIMS client.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is an exported constant or variable used by the LIMS client.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshRejected is an exported constant or variable used by the LIMS client.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrReplayNotSupported is an exported constant or variable used by the LIMS client.
	ErrReplayNotSupported = errors.New("request body cannot be replayed")
	// ErrBuilderIncomplete is an exported constant or variable used by the LIMS client.
	ErrBuilderIncomplete = errors.New("builder configuration incomplete")
	// ErrClientClosed is an exported constant or variable used by the LIMS client.
	ErrClientClosed = errors.New("client closed")
)

// apiErrorBodyLimit caps how much of an error response body is retained on an
// APIError. Larger bodies are truncated, never buffered in full.
const apiErrorBodyLimit = 2048

// APIError describes a non-2xx response from the LIMS server that does not
// map to one of the package sentinel errors. StatusCode and Endpoint are
// always set; RequestID is the X-Request-ID the client sent with the call and
// Body holds up to apiErrorBodyLimit bytes of the response payload.
type APIError struct {
	StatusCode int
	Endpoint   string
	RequestID  string
	Body       []byte
}

// Error describes the error operation and its observable behavior.
func (e *APIError) Error() string {
	return fmt.Sprintf("lims api: %s returned status %d", e.Endpoint, e.StatusCode)
}
