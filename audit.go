package goPresence

import (
	"io"

	internalaudit "github.com/MrEthical07/goPresence/internal/audit"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
// Emit is called from a single dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// FilterSink is an [AuditSink] that forwards only selected event types.
type FilterSink = internalaudit.FilterSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewFilterSink creates a [FilterSink] forwarding the listed event types to
// next. With no types every event passes.
func NewFilterSink(next AuditSink, types ...string) *FilterSink {
	return internalaudit.NewFilterSink(next, types...)
}
