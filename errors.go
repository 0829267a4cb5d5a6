package goSession

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
)

var (
	// ErrNoRefreshToken is returned by RefreshToken when none is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrLogoutFailed wraps a failed server-side logout. Local state is
	// cleared regardless.
	ErrLogoutFailed = errors.New("logout failed")
	// ErrLogoutAllFailed wraps a failed server-side logout-all.
	ErrLogoutAllFailed = errors.New("logout-all failed")
	ErrClientClosed    = errors.New("session client closed")
	// ErrStorageUnavailable is returned when refresh-token storage fails.
	ErrStorageUnavailable = token.ErrStorageUnavailable
	ErrInvalidConfig      = errors.New("invalid session configuration")
	ErrBuilderUsed        = errors.New("builder already used")
)

// StatusOf returns the HTTP status carried by err, 0 for transport failures
// or non-HTTP errors.
func StatusOf(err error) int {
	return transport.StatusOf(err)
}

// IsCredentialRejected reports a 401 from the backend.
func IsCredentialRejected(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsAccountLocked reports a 403 from the backend.
func IsAccountLocked(err error) bool {
	return StatusOf(err) == http.StatusForbidden
}

// IsRateLimited reports a 429 from the backend.
func IsRateLimited(err error) bool {
	return StatusOf(err) == http.StatusTooManyRequests
}

// IsTransient reports failures worth retrying later: no response at all, 500
// or 503.
func IsTransient(err error) bool {
	se, ok := transport.AsStatusError(err)
	if !ok {
		return false
	}
	switch se.Status {
	case 0, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}
