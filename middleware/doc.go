// Package middleware adapts goPresence to net/http.
//
// [RequestContext] copies the request id and client address into the request
// context so that every audit event emitted while serving the request carries
// them. [StatusFor] and [WriteError] translate the engine's error taxonomy
// into HTTP responses.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT decide
// presence itself; every decision is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Touch session state or Redis.
//   - Leak internal error text for server-side failures.
package middleware
