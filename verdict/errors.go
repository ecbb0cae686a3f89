package verdict

import "errors"

var (
	// ErrBatchNotFound is returned when no batch exists for the given id.
	ErrBatchNotFound = errors.New("verdict batch not found")
	// ErrRecordNotFound is returned when a batch has no record for the participant.
	ErrRecordNotFound = errors.New("verdict record not found")
	// ErrInvalidOverride is returned for overrides with an unknown status or no reviewer.
	ErrInvalidOverride = errors.New("invalid verdict override")
	// ErrInvalidBatch is returned when a batch is missing its identity fields.
	ErrInvalidBatch = errors.New("invalid verdict batch")
	// ErrRedisUnavailable wraps transport failures of the Redis store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCorruptBatch is returned when a stored blob cannot be decoded.
	ErrCorruptBatch = errors.New("verdict batch corrupt")
)
