// Package goPresence verifies that claimant devices are physically co-located
// with an anchor device by building consensus over environmental radio
// signals.
//
// An anchor opens a session with a seed fingerprint. Claimants submit
// fingerprints and motion samples as evidence. The anchor may open a short
// liveness window during which claimants must prove they are active. When the
// anchor finalizes, every enrolled participant receives exactly one verdict
// (PRESENT, PARTIAL or ABSENT) fused from signal similarity, the displacement
// shield, liveness and a peer-cluster audit, and the batch is handed to a
// [VerdictSink].
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// goPresence is the public surface. It exposes [Engine], [Builder], [Config]
// and request/response value types. Session bookkeeping, the liveness state
// machine, the cluster auditor, decision fusion, throttling and audit dispatch
// live under internal/. Signal math is exported from package signal so that
// clients and tools can score fingerprints without an Engine; verdict models
// and sinks live in package verdict.
//
// # What this package must NOT do
//
//   - Run timers. Window and session expiry are evaluated against the clock
//     when a session is addressed.
//   - Hold the registry lock while scoring fingerprints.
//   - Let one participant's evaluation failure affect another's verdict.
//   - Perform I/O outside Engine methods, except for the audit dispatcher goroutine.
package goPresence
