// Package liveness models the per-session challenge window.
//
// A Window cycles Idle -> ChallengeOpen -> Idle for the lifetime of a session. Expiry
// is never driven by a timer: IsOpen compares the stored deadline with the caller's
// clock at read time, so a window that lapsed while nothing was running is still
// recognised as closed. Window is not safe for concurrent use; the owning session
// serialises access.
package liveness

import (
	"errors"
	"time"
)

// ErrInvalidDuration is returned when a window is triggered with a non-positive duration.
var ErrInvalidDuration = errors.New("liveness window duration must be > 0")

// State is the observable window state.
type State uint8

const (
	// Idle means no challenge is accepting proofs.
	Idle State = iota
	// ChallengeOpen means proofs are accepted until the deadline.
	ChallengeOpen
)

func (s State) String() string {
	if s == ChallengeOpen {
		return "challenge_open"
	}
	return "idle"
}

// Window is a lazily-expiring challenge window.
type Window struct {
	open      bool
	openedAt  time.Time
	expiresAt time.Time
	seq       uint64
}

// Trigger opens the window until now+d. Re-triggering an open window resets
// the deadline. Each trigger advances the window sequence number, which is
// returned.
func (w *Window) Trigger(now time.Time, d time.Duration) (uint64, error) {
	if d <= 0 {
		return w.seq, ErrInvalidDuration
	}
	w.open = true
	w.openedAt = now
	w.expiresAt = now.Add(d)
	w.seq++
	return w.seq, nil
}

// IsOpen reports whether a proof submitted at now is inside the window.
func (w *Window) IsOpen(now time.Time) bool {
	return w.open && now.Before(w.expiresAt)
}

// State returns the window state as seen at now.
func (w *Window) State(now time.Time) State {
	if w.IsOpen(now) {
		return ChallengeOpen
	}
	return Idle
}

// ExpiresAt returns the deadline of the most recent trigger, or the zero time
// if the window was never opened.
func (w *Window) ExpiresAt() time.Time {
	return w.expiresAt
}

// Sequence returns the number of times the window has been triggered.
func (w *Window) Sequence() uint64 {
	return w.seq
}
