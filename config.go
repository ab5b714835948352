package authcore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override what the deployment needs; [Builder.Build] validates it once.
type Config struct {
	JWT           JWTConfig
	Refresh       RefreshConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Storage       StorageConfig
	Mail          MailConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens. The signing key is used for access
// tokens only.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // HMAC secret for hs256
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// FamilyScope selects how refresh tokens are grouped for upsert semantics.
type FamilyScope string

const (
	// FamilyScopeUser keeps one active refresh token per user.
	FamilyScopeUser FamilyScope = "user"
	// FamilyScopeSession starts a new family on every sign-in.
	FamilyScopeSession FamilyScope = "session"
)

type RefreshConfig struct {
	TTL         time.Duration
	FamilyScope FamilyScope
	// TokenEncoding is "hex" (default) or "base64url".
	TokenEncoding string
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

type VerificationConfig struct {
	TTL time.Duration
	// RequireForSignIn rejects sign-in of unverified accounts with
	// ErrAccountUnverified and sends a fresh verification prompt.
	RequireForSignIn bool
}

type PasswordResetConfig struct {
	TTL time.Duration
	// RevokeSessions revokes every refresh token of the user after a reset.
	RevokeSessions bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

/*
====================================
STORAGE / ASYNC CONFIG
====================================
*/

// StorageConfig controls Redis key layout. Refresh records live under
// "{RedisPrefix}:rt" and single-use tokens under "{RedisPrefix}:su".
type StorageConfig struct {
	RedisPrefix string
}

// MailConfig controls the asynchronous mail dispatcher. When Async is false
// notifications are sent inline and failures are only logged.
type MailConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT.PrivateKey is empty and
// must be set by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Refresh: RefreshConfig{
			TTL:           30 * 24 * time.Hour,
			FamilyScope:   FamilyScopeUser,
			TokenEncoding: "hex",
		},
		Verification: VerificationConfig{
			TTL:              10 * time.Minute,
			RequireForSignIn: true,
		},
		PasswordReset: PasswordResetConfig{
			TTL:            10 * time.Minute,
			RevokeSessions: true,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Storage: StorageConfig{
			RedisPrefix: "authcore",
		},
		Mail: MailConfig{
			Async:      true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must be longer than JWT AccessTTL")
	}
	if c.Refresh.FamilyScope != FamilyScopeUser && c.Refresh.FamilyScope != FamilyScopeSession {
		return errors.New("Refresh FamilyScope must be \"user\" or \"session\"")
	}
	if c.Refresh.TokenEncoding != "hex" && c.Refresh.TokenEncoding != "base64url" {
		return errors.New("Refresh TokenEncoding must be \"hex\" or \"base64url\"")
	}

	// Single-use tokens
	if c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Storage
	if strings.TrimSpace(c.Storage.RedisPrefix) == "" {
		return errors.New("Storage RedisPrefix must not be empty")
	}

	// Async
	if c.Mail.Async && c.Mail.BufferSize <= 0 {
		return errors.New("Mail BufferSize must be > 0 when Async is true")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Enabled is true")
	}

	return nil
}

/*
====================================
DURATION PARSING
====================================
*/

var ttlUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseTTL parses lifetimes such as "15m", "30d" or "10 m". A bare number is
// milliseconds. Compound Go durations ("1h30m") are accepted as well.
func ParseTTL(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, errors.New("empty duration")
	}

	i := strings.IndexFunc(raw, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if i == -1 {
		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}

	value, unit := raw[:i], strings.ToLower(strings.TrimSpace(raw[i:]))
	if mult, ok := ttlUnits[unit]; ok && value != "" {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return time.Duration(n * float64(mult)), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
