package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm of a [Manager].
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	minHMACSecretBytes  = 32
	maxLeeway           = 2 * time.Minute
	defaultMaxFutureIAT = 10 * time.Minute
)

var (
	// ErrExpired is returned by Verify when the token is at or past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature is returned by Verify for tampered or forged tokens,
	// tokens signed with another key or algorithm, and tokens minted for another purpose.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrMalformed is returned by Verify for every other rejection.
	ErrMalformed = errors.New("token malformed")
)

var (
	errWrongPurpose = errors.New("token purpose mismatch")
	errNoSubject    = errors.New("missing subject")
	errFutureIAT    = errors.New("token iat too far in the future")
	errMissingKID   = errors.New("missing kid")
	errUnknownKID   = errors.New("unknown kid")
	errNoSigningKey = errors.New("manager has no signing key")
)

// Config configures one signing purpose. Each purpose should carry its own
// secret or key pair so that a token minted for one purpose never verifies
// as another.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte // HMAC secret for hs256, Ed25519 private key (raw or PEM) for ed25519
	PublicKey     []byte
	Purpose       string
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string

	// VerifyKeys accepts tokens by kid during key rotation. When set, every
	// token must carry a kid found here.
	VerifyKeys map[string][]byte

	// Now is the clock used for iat/exp and validation. Nil selects time.Now.
	Now func() time.Time
}

// AccessClaims is the claim set carried by access tokens. The user id is the
// registered subject claim.
type AccessClaims struct {
	Username string `json:"usr,omitempty"`
	Purpose  string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Manager signs and verifies compact expiring claim sets. Keys are decoded
// once at construction; a Manager is safe for concurrent use.
type Manager struct {
	ttl       time.Duration
	purpose   string
	issuer    string
	audience  string
	kid       string
	maxFuture time.Duration
	now       func() time.Time

	method  jwt.SigningMethod
	signKey any
	ring    keyring
	parser  *jwt.Parser
}

// keyring resolves the verification key of a parsed token. With byKID unset
// every token verifies against fallback and its kid header is ignored.
type keyring struct {
	byKID    map[string]any
	fallback any
}

func (r keyring) lookup(t *jwt.Token) (any, error) {
	if r.byKID == nil {
		return r.fallback, nil
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errMissingKID
	}
	key, ok := r.byKID[kid]
	if !ok {
		return nil, errUnknownKID
	}
	return key, nil
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.TTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > maxLeeway:
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	m := &Manager{
		ttl:       cfg.TTL,
		purpose:   cfg.Purpose,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		kid:       strings.TrimSpace(cfg.KeyID),
		maxFuture: cfg.MaxFutureIAT,
		now:       cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	var (
		decode func([]byte) (any, error)
		err    error
	)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACSecretBytes {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minHMACSecretBytes)
		}
		m.method = jwt.SigningMethodHS256
		secret := append([]byte(nil), cfg.PrivateKey...)
		m.signKey, m.ring.fallback = secret, secret
		decode = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.ring.fallback, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return nil, errors.New("unsupported signing method")
	}

	switch {
	case len(cfg.VerifyKeys) > 0:
		m.ring.byKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			m.ring.byKID[kid] = key
		}
		if _, ok := m.ring.byKID[m.kid]; m.kid != "" && !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	case m.kid != "":
		m.ring.byKID = map[string]any{m.kid: m.ring.fallback}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Sign stamps claims with iat, exp, issuer, audience and purpose, and returns
// the compact serialized token. Caller-provided registered time claims are
// overwritten.
func (m *Manager) Sign(claims AccessClaims) (string, error) {
	if m.signKey == nil {
		return "", errNoSigningKey
	}

	iat := m.now()
	claims.Purpose = m.purpose
	claims.IssuedAt = jwt.NewNumericDate(iat)
	claims.ExpiresAt = jwt.NewNumericDate(iat.Add(m.ttl))
	claims.NotBefore = nil
	if m.issuer != "" {
		claims.Issuer = m.issuer
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	tok := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		tok.Header["kid"] = m.kid
	}
	return tok.SignedString(m.signKey)
}

// Verify parses and validates raw. The returned error always wraps one of
// ErrExpired, ErrInvalidSignature or ErrMalformed.
func (m *Manager) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, m.ring.lookup); err != nil {
		return nil, classify(err)
	}

	switch {
	case claims.Purpose != m.purpose:
		return nil, classify(errWrongPurpose)
	case claims.Subject == "":
		return nil, classify(errNoSubject)
	case claims.IssuedAt != nil && claims.IssuedAt.After(m.now().Add(m.maxFuture)):
		return nil, classify(errFutureIAT)
	}
	return claims, nil
}

func classify(err error) error {
	sentinel := ErrMalformed
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, errWrongPurpose):
		sentinel = ErrInvalidSignature
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return append(ed25519.PrivateKey(nil), key...), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return append(ed25519.PublicKey(nil), key...), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
