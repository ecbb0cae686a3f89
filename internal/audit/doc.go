// Package audit implements async event dispatching for session lifecycle and
// verdict operations.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is a structured audit record with timestamp, type, anchor, session, participant and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goPresence or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
