package goPresence

import (
	"errors"
	"fmt"
)

// Error categories. Every sentinel below wraps exactly one of these, so
// callers can branch with errors.Is without knowing the specific sentinel.
// Numeric faults inside scoring are absorbed into sentinel results and never
// surface as errors.
var (
	// ErrInput marks malformed requests: missing ids, bad fingerprints, bad settings.
	ErrInput = errors.New("invalid input")
	// ErrNotFound marks requests that address no live session.
	ErrNotFound = errors.New("not found")
	// ErrState marks requests that are well formed but not allowed right now.
	ErrState = errors.New("invalid state")
	// ErrScheduleDenied is returned when the schedule gate refuses a session.
	ErrScheduleDenied = errors.New("schedule denied")
	// ErrUnavailable marks failures of the engine or one of its backends.
	ErrUnavailable = errors.New("unavailable")
)

var (
	// ErrInvalidAnchorID is returned when a request carries no anchor id.
	ErrInvalidAnchorID = fmt.Errorf("%w: anchor id required", ErrInput)
	// ErrInvalidParticipantID is returned when a request carries no participant id.
	ErrInvalidParticipantID = fmt.Errorf("%w: participant id required", ErrInput)
	// ErrInvalidFingerprint is returned for empty seeds, empty access point ids and non-finite readings.
	ErrInvalidFingerprint = fmt.Errorf("%w: invalid fingerprint", ErrInput)
	// ErrInvalidSettings is returned when session settings are out of range.
	ErrInvalidSettings = fmt.Errorf("%w: invalid session settings", ErrInput)
	// ErrInvalidEvidence is returned when an evidence request has neither a fingerprint nor motion.
	ErrInvalidEvidence = fmt.Errorf("%w: evidence requires a fingerprint or motion samples", ErrInput)
	// ErrInvalidWindow is returned when a liveness window exceeds the configured maximum.
	ErrInvalidWindow = fmt.Errorf("%w: liveness window out of range", ErrInput)
	// ErrInvalidOverride is returned for overrides without a valid status or reviewer.
	ErrInvalidOverride = fmt.Errorf("%w: invalid verdict override", ErrInput)

	// ErrNoActiveSession is returned when the anchor has no live session.
	ErrNoActiveSession = fmt.Errorf("%w: no active session", ErrNotFound)
	// ErrSessionNotFound is returned when discovery finds no session above threshold.
	ErrSessionNotFound = fmt.Errorf("%w: no matching session", ErrNotFound)
	// ErrVerdictNotFound is returned when a verdict batch or record does not exist.
	ErrVerdictNotFound = fmt.Errorf("%w: verdict not found", ErrNotFound)

	// ErrWindowClosed is returned for liveness proofs outside an open window.
	ErrWindowClosed = fmt.Errorf("%w: liveness window closed", ErrState)
	// ErrSessionFinalizing is returned for writes against a session that is being finalized.
	ErrSessionFinalizing = fmt.Errorf("%w: session finalizing", ErrState)
	// ErrSessionFull is returned when a new participant would exceed the per-session cap.
	ErrSessionFull = fmt.Errorf("%w: session participant limit reached", ErrState)
	// ErrParticipantUnknown is returned for liveness proofs from participants without evidence.
	ErrParticipantUnknown = fmt.Errorf("%w: participant has no evidence", ErrState)
	// ErrChallengeInvalid is returned when a liveness proof carries a missing or foreign challenge token.
	ErrChallengeInvalid = fmt.Errorf("%w: challenge token invalid", ErrState)
	// ErrEvidenceRateLimited is returned when a participant exceeds its submission budget.
	ErrEvidenceRateLimited = fmt.Errorf("%w: submission rate limited", ErrState)
)

var (
	// ErrPersistFailed is returned when the verdict sink rejects a batch. The
	// session stays open so finalization can be retried.
	ErrPersistFailed = fmt.Errorf("%w: verdict persistence failed", ErrUnavailable)
	// ErrEnrollmentUnavailable is returned when the enrollment provider fails.
	ErrEnrollmentUnavailable = fmt.Errorf("%w: enrollment provider unavailable", ErrUnavailable)
	// ErrVerdictStoreUnavailable is returned when verdict reads or overrides are
	// requested but the configured sink cannot serve them.
	ErrVerdictStoreUnavailable = fmt.Errorf("%w: verdict store unavailable", ErrUnavailable)
	// ErrRateLimiterUnavailable is returned when the throttle backend fails and
	// RateLimit.FailClosed is set.
	ErrRateLimiterUnavailable = fmt.Errorf("%w: rate limiter unavailable", ErrUnavailable)
	// ErrEngineNotReady is returned by a nil or closed Engine.
	ErrEngineNotReady = fmt.Errorf("%w: engine not initialized", ErrUnavailable)
)
