package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/dispatch"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Engine is the authentication service. It is safe for concurrent use once
// returned by [Builder.Build]; all shared state lives in Redis and the
// [UserStore].
type Engine struct {
	config       Config
	refresh      *stores.RefreshStore
	singleUse    *stores.SingleUseStore
	audit        *dispatch.Dispatcher[AuditEvent]
	mail         *dispatch.Dispatcher[flows.MailJob]
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	users        UserStore
	notifier     MailNotifier
	logger       *slog.Logger
	now          func() time.Time
	flow         flows.Service
}

// Close flushes queued mail and audit events. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mail.Close()
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped returns how many mail jobs were dropped on a full buffer.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mail.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// SignIn validates username and password and issues a token pair. Unknown
// users and wrong passwords both yield [ErrUnauthorized]; an unverified
// account yields [ErrAccountUnverified] after a fresh verification prompt
// has been queued.
func (e *Engine) SignIn(ctx context.Context, username, password, clientIP string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.flow.SignIn(withClientIP(ctx, clientIP), username, password, clientIP)
}

// SignInExternal signs in an identity a third-party provider has already
// verified. A new email creates a verified account and needs
// identity.Username, otherwise [ErrUsernameRequired] is returned.
func (e *Engine) SignInExternal(ctx context.Context, identity ExternalIdentity, clientIP string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.flow.SignInExternal(withClientIP(ctx, clientIP), identity, clientIP)
}

// Refresh rotates a refresh token. A token that is unknown or expired
// yields [ErrRefreshInvalid]. A token that was already rotated or revoked
// yields [ErrRefreshReuse] after every refresh token of its owner has been
// revoked and the owner has been notified.
func (e *Engine) Refresh(ctx context.Context, rawRefreshToken, clientIP string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.flow.Refresh(withClientIP(ctx, clientIP), rawRefreshToken, clientIP)
}

// SignOut revokes one refresh token. It is idempotent and succeeds for
// unknown tokens.
func (e *Engine) SignOut(ctx context.Context, rawRefreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.SignOut(ctx, rawRefreshToken)
}

// SignOutUser revokes every refresh token of userID.
func (e *Engine) SignOutUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.SignOutUser(ctx, userID)
}

// SignUp registers an account and queues a verification prompt. A blank
// email fails with [ErrEmailRequired].
func (e *Engine) SignUp(ctx context.Context, email, username, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.SignUp(ctx, email, username, password)
}

func (e *Engine) ResendVerification(ctx context.Context, username string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.ResendVerification(ctx, username)
}

func (e *Engine) VerifyAccount(ctx context.Context, rawToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.VerifyAccount(ctx, rawToken)
}

// RecoverAccount queues a password-reset prompt. It returns nil for unknown
// emails so callers cannot learn which addresses have accounts.
func (e *Engine) RecoverAccount(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.RecoverAccount(ctx, email)
}

// ResetPassword redeems a reset token. A password rejected by the hasher
// yields [ErrPasswordPolicy] and leaves the token usable.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.ResetPassword(ctx, rawToken, newPassword)
}

// ValidateCredential checks username and password and returns the user id
// without issuing tokens.
func (e *Engine) ValidateCredential(ctx context.Context, username, password string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	user, err := e.flow.ValidateCredential(ctx, username, password)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ValidateAccess verifies an access token. Failures match [ErrUnauthorized]
// and one of jwt.ErrExpired, jwt.ErrInvalidSignature or jwt.ErrMalformed.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.flow.ValidateAccess(ctx, accessToken)
}

// AuthUser returns the public projection of the account userID.
func (e *Engine) AuthUser(ctx context.Context, userID string) (*PublicUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.flow.AuthUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PublicUser{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Name:     user.Name,
	}, nil
}

func (e *Engine) sendMail(ctx context.Context, job flows.MailJob) {
	if e.mail == nil {
		e.deliverMail(ctx, job)
		return
	}
	e.mail.Submit(ctx, job)
}

// deliverMail runs on the mail dispatcher goroutine, or inline when mail is
// synchronous. Errors stop here.
func (e *Engine) deliverMail(ctx context.Context, job flows.MailJob) {
	if e.notifier == nil {
		e.logger.DebugContext(ctx, "mail discarded, no notifier configured", "kind", job.Kind.String())
		return
	}

	var err error
	switch job.Kind {
	case flows.MailVerificationPrompt:
		err = e.notifier.SendVerificationPrompt(ctx, job.Email, job.Token)
	case flows.MailAccountRecovery:
		err = e.notifier.SendAccountRecoveryPrompt(ctx, job.Email, job.Name, job.Token)
	case flows.MailTokenReused:
		err = e.notifier.SendTokenReusedMail(ctx, job.Email, job.Name)
	default:
		e.logger.WarnContext(ctx, "unknown mail kind", "kind", int(job.Kind))
		return
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "mail delivery failed", "kind", job.Kind.String(), "error", err)
	}
}
