// Package registry owns the live presence sessions: one per anchor, each with an
// append-only evidence map and a liveness window.
//
// # Concurrency contract
//
// The anchor map is guarded by a RWMutex held only for O(1) map operations;
// discovery copies the candidate list and scores it outside the lock. Each
// [Session] serialises its own evidence and window behind a private mutex, so
// unrelated anchors never contend. Replacing or closing a session marks the old
// value closed before the lock is released; any goroutine still holding a stale
// *Session observes ErrSessionClosed instead of writing into a discarded session.
//
// # What this package must NOT do
//
//   - Run timers or background goroutines. Window and lifetime expiry are
//     evaluated against the injected clock at read time.
//   - Make presence decisions; see internal/decision.
package registry
