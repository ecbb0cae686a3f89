// Package otel binds goPresence counters and histograms to OpenTelemetry
// metric instruments.
//
// [NewExporter] registers an Int64ObservableCounter for each engine counter,
// one Int64ObservableGauge per histogram bucket and a gauge of active
// sessions. A single callback reads [goPresence.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
