package authcore

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
)

// User is the account record the engine reads and writes through
// [UserStore]. PasswordHash never leaves the engine except towards the store.
type User = flows.User

// UserStore is the account persistence the engine consumes. Lookups of a
// missing user must return an error matching [ErrUserNotFound]; Create must
// return [ErrUserExists] when the email or username is already taken.
//
// The userstore package provides a SQL implementation.
type UserStore = flows.UserStore

// MailNotifier delivers account mail. Calls are fire-and-forget from the
// engine's perspective: failures are logged, never returned to callers.
//
// The mailer package provides SMTP and slog implementations.
type MailNotifier = flows.Notifier

// TokenPair is returned by every operation that authenticates a user.
type TokenPair = flows.TokenPair

// ExternalIdentity is an identity already verified by a third-party
// provider and passed to [Engine.SignInExternal].
type ExternalIdentity = flows.ExternalIdentity

// AccessClaims is the decoded content of a valid access token.
type AccessClaims = jwt.AccessClaims

// PublicUser is the projection of [User] safe to return to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events as structured log records.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
