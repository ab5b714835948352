// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunSignIn, RunRefresh, RunResetPassword, etc.) takes a
// [Deps] value and touches the outside world only through it. Stores,
// codecs, the hasher, mail and audit delivery all arrive as interfaces or
// function fields, so flows can be tested against fakes.
//
// # Architecture boundaries
//
// Flows decide what happens; the stores decide how it stays atomic. A flow
// never performs a read-then-write on token state itself: upserts, rotation
// and single-use consumption are each a single store call.
//
// Host sentinel errors, metric IDs and audit event names are injected through
// [Errors], [Metrics] and [Events].
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Log raw tokens or passwords.
//   - Let a mail failure change the outcome of a flow.
package flows
