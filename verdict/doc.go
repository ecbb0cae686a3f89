// Package verdict defines the per-participant presence verdict and the durable
// sinks that accept finalized verdict batches.
//
// # Persistence
//
// [RedisStore] keeps batches as a compact versioned binary blob with a per-anchor
// time-ordered index; [PostgresStore] writes one row per batch and per record.
// Both implement the engine's sink contract through SaveVerdicts.
//
// # What this package must NOT do
//
//   - Import goPresence or any internal package (no upward imports).
//   - Recompute or alter engine decisions. Human overrides are stored beside the
//     original record, never in place of it.
package verdict
