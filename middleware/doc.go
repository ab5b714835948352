// Package middleware exposes HTTP adapters that guard routes with
// authcore.Engine access token validation.
//
// # Guards
//
//   - [RequireAccess] verifies the bearer access token only. No storage call.
//   - [RequireUser] also loads the account, so deleted users are rejected.
//   - [EchoRequireAccess] is the echo flavor of RequireAccess.
//
// Each guard reads the Authorization header, calls Engine.ValidateAccess and
// injects the validated claims into the request context.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly (delegates to Engine).
//   - Touch refresh tokens or cookies.
//   - Make authorization decisions beyond pass/reject.
package middleware
