// Package rate throttles evidence and liveness-proof submissions with
// Redis-backed counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on first hit. Key prefixes:
//   - pe: evidence per (anchor, participant)
//   - pp: liveness proofs per (anchor, participant)
//
// # What this package must NOT do
//
//   - Decide what happens when Redis is unavailable (the engine does).
//   - Be imported outside the goPresence module.
package rate
