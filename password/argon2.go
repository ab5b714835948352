package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	floorMemoryKB    uint32 = 8 * 1024
	floorTime        uint32 = 1
	floorThreads     uint8  = 1
	floorSaltBytes   uint32 = 16
	floorKeyBytes    uint32 = 16
	minPasswordBytes        = 10
)

// DefaultMaxPasswordBytes bounds hashing cost when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrPasswordTooShort is returned by Hash for passwords under 10 bytes.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	// ErrPasswordTooLong is returned when a password exceeds Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every digest decoding failure.
	ErrMalformedHash = errors.New("malformed argon2id digest")
)

var b64 = base64.StdEncoding

// Config holds the argon2id cost parameters. Memory is expressed in KiB.
//
// Rand supplies salt bytes; nil selects crypto/rand.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MaxPasswordBytes int
	Rand             io.Reader
}

func (c Config) check() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", floorMemoryKB)
	case c.Time < floorTime:
		return errors.New("password time must be >= 1")
	case c.Parallelism < floorThreads:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < floorSaltBytes:
		return fmt.Errorf("password salt length must be >= %d", floorSaltBytes)
	case c.KeyLength < floorKeyBytes:
		return fmt.Errorf("password key length must be >= %d", floorKeyBytes)
	case c.MaxPasswordBytes < 0, c.MaxPasswordBytes > 0 && c.MaxPasswordBytes < minPasswordBytes:
		return fmt.Errorf("password max length must be >= %d bytes", minPasswordBytes)
	}
	return nil
}

// Argon2 is the password hasher. It is safe for concurrent use once built.
type Argon2 struct {
	params  digest
	maxLen  int
	entropy io.Reader
}

// NewArgon2 checks cfg against the cost floors and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}

	a := &Argon2{
		params: digest{
			memory:  cfg.Memory,
			time:    cfg.Time,
			threads: cfg.Parallelism,
			salt:    make([]byte, cfg.SaltLength),
			key:     make([]byte, cfg.KeyLength),
		},
		maxLen:  cfg.MaxPasswordBytes,
		entropy: cfg.Rand,
	}
	if a.maxLen == 0 {
		a.maxLen = DefaultMaxPasswordBytes
	}
	if a.entropy == nil {
		a.entropy = rand.Reader
	}
	return a, nil
}

// Hash derives a salted argon2id digest in PHC string format. Password
// bytes are used exactly as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch n := len(password); {
	case n < minPasswordBytes:
		return "", ErrPasswordTooShort
	case n > a.maxLen:
		return "", ErrPasswordTooLong
	}

	d := a.params
	d.salt = make([]byte, len(a.params.salt))
	if _, err := io.ReadFull(a.entropy, d.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	d.key = d.derive(password, uint32(len(a.params.key)))
	return d.String(), nil
}

// Compare reports whether password matches encodedHash. A malformed or
// unsupported digest compares as false.
func (a *Argon2) Compare(password, encodedHash string) bool {
	ok, err := a.Verify(password, encodedHash)
	return ok && err == nil
}

// Verify recomputes the digest with the parameters embedded in encodedHash
// and compares in constant time. It errors when the password is over the
// length limit or encodedHash cannot be decoded.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.maxLen {
		return false, ErrPasswordTooLong
	}
	d, err := decodeDigest(encodedHash)
	if err != nil {
		return false, err
	}
	got := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(got, d.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is weaker than the current
// parameters, or was derived with a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	d, err := decodeDigest(encodedHash)
	if err != nil {
		return false, err
	}
	cur := a.params
	return d.memory < cur.memory ||
		d.time < cur.time ||
		d.threads < cur.threads ||
		len(d.key) != len(cur.key), nil
}

// digest is one argon2id PHC string:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
type digest struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (d digest) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.threads, keyLen)
}

func (d digest) costs() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", d.memory, d.time, d.threads)
}

func (d digest) String() string {
	return strings.Join([]string{
		"",
		algorithmID,
		fmt.Sprintf("v=%d", argon2.Version),
		d.costs(),
		b64.EncodeToString(d.salt),
		b64.EncodeToString(d.key),
	}, "$")
}

func decodeDigest(s string) (digest, error) {
	var d digest

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return d, ErrMalformedHash
	}
	if fields[1] != algorithmID {
		return d, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, fields[1])
	}
	if want := fmt.Sprintf("v=%d", argon2.Version); fields[2] != want {
		return d, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	// Re-rendering rejects trailing input, reordering and leading zeros,
	// none of which Sscanf notices.
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.threads); err != nil || d.costs() != fields[3] {
		return d, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[3])
	}
	if d.memory < floorMemoryKB || d.time < floorTime || d.threads < floorThreads {
		return d, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}

	var err error
	if d.salt, err = b64.DecodeString(fields[4]); err != nil || len(d.salt) < int(floorSaltBytes) {
		return d, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if d.key, err = b64.DecodeString(fields[5]); err != nil || len(d.key) == 0 {
		return d, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return d, nil
}
