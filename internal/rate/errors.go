package rate

import "errors"

var (
	// ErrRateLimited reports that the login budget for the window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures of the backing Redis client.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
