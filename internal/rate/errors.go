package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter exceeds its budget in the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
