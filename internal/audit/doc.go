// Package audit defines the audit event model and the sinks that consume it.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Event]: structured audit record with timestamp, type, user, IP and metadata.
//
// Buffering and async delivery live in internal/dispatch.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
//   - Record raw tokens or passwords.
package audit
