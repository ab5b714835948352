// Package jwt signs and verifies compact, expiring claim sets.
//
// A [Manager] is bound to one purpose and one key. Verify reports failures as
// [ErrExpired], [ErrInvalidSignature] or [ErrMalformed] so callers can tell a
// stale token from a forged one.
package jwt
