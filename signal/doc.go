// Package signal holds the pure math used to compare environmental fingerprints:
// cosine similarity over shifted signal strengths and the displacement shield that
// estimates physical separation and obstruction between two devices.
//
// # Architecture boundaries
//
// Every function here is total. Malformed or non-finite input never panics and never
// returns NaN; it degrades to the conservative sentinel (similarity 0, displacement
// [MaxDisplacement]). Session state, liveness and policy live elsewhere.
//
// # What this package must NOT do
//
//   - Import goPresence or any internal package (no upward imports).
//   - Hold state between calls.
package signal
