// Package authcore implements the authentication token lifecycle: password
// credentials, short-lived signed access tokens, rotating opaque refresh
// tokens with reuse detection, and single-use tokens for account
// verification and password reset.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and value types such as [TokenPair] and [AuditEvent]. Flow orchestration,
// Redis key layout and Lua scripts, and async dispatch live under internal/
// and are never exported.
//
// Account storage and mail delivery are collaborators supplied by the host
// through [UserStore] and [MailNotifier]; the userstore and mailer packages
// provide ready implementations.
//
// # What this package must NOT do
//
//   - Persist or log raw tokens. Only SHA-256 digests reach Redis.
//   - Use read-then-write sequences on token state. Upserts, rotation and
//     single-use consumption are each one Lua script.
//   - Let a mail failure change the result of an operation.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path and never touches Redis. Refresh costs
// two Redis round-trips (read, then an atomic rotate); SignIn costs one
// argon2 comparison plus one round-trip.
package authcore
