package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderRetryAfterSeconds is the backend's rate-limit hint.
	HeaderRetryAfterSeconds = "X-Rate-Limit-Retry-After-Seconds"

	maxErrorBody = 1 << 20
)

// ErrorResponse is the backend error body.
type ErrorResponse struct {
	Path        string `json:"path,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Status      int    `json:"status,omitempty"`
	LockedUntil string `json:"lockedUntil,omitempty"`
}

// StatusError is a normalized request failure. Status is 0 when no response
// was received.
type StatusError struct {
	Status      int
	StatusText  string
	Body        ErrorResponse
	Header      http.Header
	UserMessage string
	Err         error
}

func (e *StatusError) Error() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Err != nil {
		return "Error: " + e.Err.Error()
	}
	return "Error: " + e.StatusText
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// RetryAfter returns the server's retry hint, if any, measured from the wall
// clock.
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	return e.RetryAfterAt(time.Now())
}

// RetryAfterAt is RetryAfter with HTTP-date hints measured from now.
func (e *StatusError) RetryAfterAt(now time.Time) (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	if v := strings.TrimSpace(e.Header.Get(HeaderRetryAfterSeconds)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	v := strings.TrimSpace(e.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// LockedUntil parses the lockedUntil field of the error body. Timestamps
// without a zone are read in local time.
func (e *StatusError) LockedUntil() (time.Time, bool) {
	raw := strings.TrimSpace(e.Body.LockedUntil)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", raw, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// AsStatusError extracts a *StatusError from err's chain.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsContextError reports whether err was caused by a cancelled or expired
// context rather than by the server.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if se, ok := AsStatusError(err); ok {
		return se.Status
	}
	return 0
}

// NewStatusError consumes and closes resp.Body.
func NewStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()

	se := &StatusError{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header.Clone(),
	}
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, &se.Body)
	}
	se.UserMessage = UserMessage(se.Status, se.Body.Message, se.StatusText)
	return se
}

// NewTransportError wraps a failure where no response was received.
func NewTransportError(err error) *StatusError {
	return &StatusError{
		Status:      0,
		UserMessage: "Error: " + err.Error(),
		Err:         err,
	}
}

// UserMessage maps a status and optional server message to display text.
func UserMessage(status int, serverMessage, statusText string) string {
	pick := func(fallback string) string {
		if serverMessage != "" {
			return serverMessage
		}
		return fallback
	}
	switch status {
	case http.StatusBadRequest:
		return pick("Invalid request. Please check your input.")
	case http.StatusUnauthorized:
		return pick("Invalid credentials or session expired.")
	case http.StatusForbidden:
		return pick("Access forbidden. Your account may be locked.")
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusTooManyRequests:
		return "Too many requests. Please try again later."
	case http.StatusInternalServerError:
		return "Server error. Please try again later."
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable. Please try again later."
	default:
		return pick("Error: " + statusText)
	}
}

func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
