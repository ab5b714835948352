// Package dispatch implements a buffered, single-worker async relay used for
// audit events and outbound account mail.
//
// # Architecture boundaries
//
// This package owns buffering, drop accounting and shutdown draining. It does
// NOT decide what is dispatched or what the handler does with it.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Retry failed handler work.
package dispatch
