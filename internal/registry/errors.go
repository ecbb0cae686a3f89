package registry

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for an anchor.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when operating on a replaced or closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionFinalizing is returned once finalization has begun.
	ErrSessionFinalizing = errors.New("session finalizing")
	// ErrSessionFull is returned when a new participant would exceed the cap.
	ErrSessionFull = errors.New("session participant limit reached")
	// ErrWindowClosed is returned for proofs outside an open liveness window.
	ErrWindowClosed = errors.New("liveness window closed")
	// ErrParticipantUnknown is returned for proofs from participants without evidence.
	ErrParticipantUnknown = errors.New("participant has no evidence")
	// ErrNoCandidate is returned by Discover when no session qualifies.
	ErrNoCandidate = errors.New("no session matches fingerprint")
)
