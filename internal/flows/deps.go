package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
)

// User is the flow-local account model. The root package re-exports it.
type User struct {
	ID           string
	Email        string
	Username     string
	Name         string
	PasswordHash string
	Verified     bool
	Provider     string
	CreatedAt    time.Time
}

// UserStore is the account persistence the flows consume. Lookups of
// missing users must return an error matching Errors.UserNotFound, and
// Create must return Errors.UserExists on a duplicate email or username.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, userID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	MarkVerified(ctx context.Context, userID string) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// Notifier delivers account mail. Implementations log their own failures;
// the returned error is only reported, never surfaced to callers.
type Notifier interface {
	SendVerificationPrompt(ctx context.Context, email, token string) error
	SendAccountRecoveryPrompt(ctx context.Context, email, name, token string) error
	SendTokenReusedMail(ctx context.Context, email, name string) error
}

type RefreshStore interface {
	Issue(ctx context.Context, digest string, record *stores.RefreshRecord, ttl time.Duration) error
	Get(ctx context.Context, digest string) (*stores.RefreshRecord, error)
	Rotate(ctx context.Context, in stores.RotateInput) (stores.RotateResult, error)
	Revoke(ctx context.Context, digest, reason string, now time.Time) (bool, error)
	RevokeAll(ctx context.Context, userID, reason string, now time.Time) (int, error)
}

type SingleUseStore interface {
	Issue(ctx context.Context, digest string, record *stores.SingleUseRecord, ttl time.Duration) error
	Consume(ctx context.Context, purpose stores.Purpose, digest string, now time.Time) (*stores.SingleUseRecord, error)
}

type TokenCodec interface {
	Generate() (string, error)
	Digest(raw string) string
	WellFormed(raw string) bool
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, encodedHash string) bool
	NeedsUpgrade(encodedHash string) (bool, error)
}

// MailKind selects the template of a queued mail job.
type MailKind int

const (
	MailVerificationPrompt MailKind = iota + 1
	MailAccountRecovery
	MailTokenReused
)

func (k MailKind) String() string {
	switch k {
	case MailVerificationPrompt:
		return "verification_prompt"
	case MailAccountRecovery:
		return "account_recovery"
	case MailTokenReused:
		return "token_reused"
	default:
		return "unknown"
	}
}

// MailJob is one fire-and-forget notification. Token carries a raw
// single-use token and must not be logged.
type MailJob struct {
	Kind  MailKind
	Email string
	Name  string
	Token string
}

// TokenPair is the result of every flow that authenticates a user.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ExternalIdentity is an identity already verified by a third-party provider.
type ExternalIdentity struct {
	Provider string
	Email    string
	Username string
	Name     string
}

// Metrics carries metric IDs used by the flows.
type Metrics struct {
	SignInSuccess        int
	SignInFailure        int
	SignInUnverified     int
	ExternalSignIn       int
	RefreshSuccess       int
	RefreshFailure       int
	RefreshReuseDetected int
	SignOut              int
	SignOutAll           int
	SignUpSuccess        int
	SignUpDuplicate      int
	VerificationIssued   int
	VerificationSuccess  int
	VerificationFailure  int
	RecoveryRequest      int
	PasswordResetSuccess int
	PasswordResetFailure int
	PasswordRehash       int
	AccessValid          int
	AccessInvalid        int
	ValidateLatency      int
}

// Events carries audit event names used by the flows.
type Events struct {
	SignInSuccess        string
	SignInFailure        string
	RefreshSuccess       string
	RefreshInvalid       string
	RefreshReuseDetected string
	SignOut              string
	SignOutAll           string
	SignUp               string
	VerificationIssued   string
	VerificationConfirm  string
	RecoveryRequest      string
	PasswordReset        string
}

// Errors carries host-level sentinel errors so flows can return them
// without importing the root package.
type Errors struct {
	EngineNotReady        error
	Unauthorized          error
	AccountUnverified     error
	InvalidOrExpiredToken error
	RefreshInvalid        error
	RefreshReuse          error
	EmailRequired         error
	UsernameRequired      error
	UsernameTaken         error
	UserNotFound          error
	UserExists            error
	PasswordPolicy        error
	BackendUnavailable    error
}

// AuditFunc emits one audit event. metadata is only invoked when auditing is on.
type AuditFunc func(ctx context.Context, eventType string, success bool, userID, username string, err error, metadata func() map[string]string)

// Deps captures every flow dependency. The root engine builds it once.
type Deps struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	VerificationTTL  time.Duration
	ResetTTL         time.Duration
	FamilyPerSession bool
	RequireVerified  bool
	UpgradeOnLogin   bool
	RevokeOnReset    bool

	// DummyHash is compared against for unknown usernames so both paths
	// pay the hashing cost.
	DummyHash string

	Users     UserStore
	Refresh   RefreshStore
	SingleUse SingleUseStore
	Tokens    TokenCodec
	Passwords PasswordHasher
	Access    *jwt.Manager

	SendMail  func(context.Context, MailJob)
	Now       func() time.Time
	NewID     func() string
	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit AuditFunc
	Logger    *slog.Logger

	Metrics Metrics
	Events  Events
	Errors  Errors
}

func normalizeDeps(deps *Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Observe == nil {
		deps.Observe = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.SendMail == nil {
		deps.SendMail = func(context.Context, MailJob) {}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
}

func (d *Deps) ready() bool {
	return d.Users != nil &&
		d.Refresh != nil &&
		d.SingleUse != nil &&
		d.Tokens != nil &&
		d.Passwords != nil &&
		d.Access != nil &&
		d.NewID != nil
}

// backend wraps a persistence failure under Errors.BackendUnavailable.
func (d *Deps) backend(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", d.Errors.BackendUnavailable, op, err)
}

func (d *Deps) isUserNotFound(err error) bool {
	return d.Errors.UserNotFound != nil && errors.Is(err, d.Errors.UserNotFound)
}

func (d *Deps) isUserExists(err error) bool {
	return d.Errors.UserExists != nil && errors.Is(err, d.Errors.UserExists)
}
