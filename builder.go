package authcore

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/dispatch"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// accessTokenPurpose is stamped into every access token so tokens signed for
// other purposes with the same key are rejected.
const accessTokenPurpose = "access"

// Builder assembles an [Engine]. A Builder is single-use: after Build it
// refuses to build again.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	notifier  MailNotifier
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time
	random    io.Reader

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client holding refresh and single-use token state.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithMailNotifier sets the account mail transport. Without one, mail jobs
// are logged at debug level and discarded.
func (b *Builder) WithMailNotifier(n MailNotifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every expiry decision the engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom replaces crypto/rand as the source of token and salt bytes.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
		Rand:             b.random,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Purpose:       accessTokenPurpose,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	encoding := token.EncodingHex
	if cfg.Refresh.TokenEncoding == "base64url" {
		encoding = token.EncodingBase64URL
	}
	codec := token.NewCodec(b.random, encoding)

	// A hash no password matches, compared against for unknown usernames.
	filler, err := codec.Generate()
	if err != nil {
		return nil, err
	}
	dummyHash, err := ph.Hash(filler)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		metrics:      NewMetrics(cfg.Metrics),
		logger:       logger,
		now:          now,
		notifier:     b.notifier,
		refresh:      stores.NewRefreshStore(b.redis, cfg.Storage.RedisPrefix+":rt"),
		singleUse:    stores.NewSingleUseStore(b.redis, cfg.Storage.RedisPrefix+":su"),
		passwordHash: ph,
		jwtManager:   jm,
		users:        b.users,
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}
	engine.audit = dispatch.New[AuditEvent](dispatch.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink.Emit)
	engine.mail = dispatch.New[flows.MailJob](dispatch.Config{
		Enabled:    cfg.Mail.Async,
		BufferSize: cfg.Mail.BufferSize,
		DropIfFull: cfg.Mail.DropIfFull,
	}, engine.deliverMail)

	engine.flow = flows.New(flows.Deps{
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.Refresh.TTL,
		VerificationTTL:  cfg.Verification.TTL,
		ResetTTL:         cfg.PasswordReset.TTL,
		FamilyPerSession: cfg.Refresh.FamilyScope == FamilyScopeSession,
		RequireVerified:  cfg.Verification.RequireForSignIn,
		UpgradeOnLogin:   cfg.Password.UpgradeOnLogin,
		RevokeOnReset:    cfg.PasswordReset.RevokeSessions,

		DummyHash: dummyHash,

		Users:     b.users,
		Refresh:   engine.refresh,
		SingleUse: engine.singleUse,
		Tokens:    codec,
		Passwords: ph,
		Access:    jm,

		SendMail:  engine.sendMail,
		Now:       now,
		NewID:     uuid.NewString,
		MetricInc: func(id int) { engine.metricInc(MetricID(id)) },
		Observe:   func(id int, d time.Duration) { engine.metrics.Observe(MetricID(id), d) },
		EmitAudit: engine.emitAudit,
		Logger:    logger,

		Metrics: flowMetrics(),
		Events:  flowEvents(),
		Errors:  flowErrors(),
	})

	b.built = true

	return engine, nil
}

func flowMetrics() flows.Metrics {
	return flows.Metrics{
		SignInSuccess:        int(MetricSignInSuccess),
		SignInFailure:        int(MetricSignInFailure),
		SignInUnverified:     int(MetricSignInUnverified),
		ExternalSignIn:       int(MetricExternalSignIn),
		RefreshSuccess:       int(MetricRefreshSuccess),
		RefreshFailure:       int(MetricRefreshFailure),
		RefreshReuseDetected: int(MetricRefreshReuseDetected),
		SignOut:              int(MetricSignOut),
		SignOutAll:           int(MetricSignOutAll),
		SignUpSuccess:        int(MetricSignUpSuccess),
		SignUpDuplicate:      int(MetricSignUpDuplicate),
		VerificationIssued:   int(MetricVerificationIssued),
		VerificationSuccess:  int(MetricVerificationSuccess),
		VerificationFailure:  int(MetricVerificationFailure),
		RecoveryRequest:      int(MetricRecoveryRequest),
		PasswordResetSuccess: int(MetricPasswordResetSuccess),
		PasswordResetFailure: int(MetricPasswordResetFailure),
		PasswordRehash:       int(MetricPasswordRehash),
		AccessValid:          int(MetricAccessValid),
		AccessInvalid:        int(MetricAccessInvalid),
		ValidateLatency:      int(MetricValidateLatency),
	}
}

func flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:        ErrEngineNotReady,
		Unauthorized:          ErrUnauthorized,
		AccountUnverified:     ErrAccountUnverified,
		InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
		RefreshInvalid:        ErrRefreshInvalid,
		RefreshReuse:          ErrRefreshReuse,
		EmailRequired:         ErrEmailRequired,
		UsernameRequired:      ErrUsernameRequired,
		UsernameTaken:         ErrUsernameTaken,
		UserNotFound:          ErrUserNotFound,
		UserExists:            ErrUserExists,
		PasswordPolicy:        ErrPasswordPolicy,
		BackendUnavailable:    ErrBackendUnavailable,
	}
}
