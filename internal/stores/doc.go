// Package stores provides the Redis-backed persistence behind refresh token
// rotation and single-use account tokens (verification, password reset).
//
// # Design
//
// Records are keyed by the SHA-256 digest of the raw token; raw tokens never
// reach Redis. Every mutation that must not race (issue-with-replace,
// consume, rotate, revoke) runs as a single Lua script so that Redis
// serializes it. Refresh records are retained after revocation so that a
// replayed token can be told apart from one that never existed.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity. It does NOT generate tokens,
// sign access tokens, send mail or make authentication decisions; those
// belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store or log raw token values.
//   - Read-then-write outside a script where a race would double-spend a token.
package stores
