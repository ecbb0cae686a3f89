// Package prometheus exposes goPresence metrics through
// prometheus/client_golang.
//
// [Exporter] is a prometheus.Collector that reads [goPresence.Engine.MetricsSnapshot]
// on every scrape. Counter names are presence_*_total; the finalize latency
// histogram is presence_finalize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     Exporter or mount [Exporter.Handler].
//   - Mutate engine state.
package prometheus
