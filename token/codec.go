package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// SecretSize is the number of random bytes in every generated token (256 bits).
const SecretSize = 32

// Encoding selects the printable form of generated tokens.
type Encoding int

const (
	// EncodingHex renders tokens as 64 lowercase hex characters.
	EncodingHex Encoding = iota
	// EncodingBase64URL renders tokens as unpadded base64url (43 characters).
	EncodingBase64URL
)

// Codec generates opaque tokens and their storage digests.
type Codec struct {
	rand     io.Reader
	encoding Encoding
}

// NewCodec returns a Codec reading entropy from r. A nil reader selects crypto/rand.
func NewCodec(r io.Reader, encoding Encoding) *Codec {
	if r == nil {
		r = rand.Reader
	}
	return &Codec{rand: r, encoding: encoding}
}

// Generate returns a fresh raw token. The raw value is meant for the caller
// only and must never be persisted.
func (c *Codec) Generate() (string, error) {
	var secret [SecretSize]byte
	if _, err := io.ReadFull(c.rand, secret[:]); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}

	switch c.encoding {
	case EncodingBase64URL:
		return base64.RawURLEncoding.EncodeToString(secret[:]), nil
	default:
		return hex.EncodeToString(secret[:]), nil
	}
}

// Digest returns the lowercase hex SHA-256 of raw. It is a lookup key, not a
// hardening step: the token's entropy is what protects it.
func (c *Codec) Digest(raw string) string {
	return Digest(raw)
}

// Digest is the package-level form of [Codec.Digest].
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether raw has the shape Generate produces for the
// codec's encoding. Callers can reject garbage before touching storage.
func (c *Codec) WellFormed(raw string) bool {
	switch c.encoding {
	case EncodingBase64URL:
		b, err := base64.RawURLEncoding.DecodeString(raw)
		return err == nil && len(b) == SecretSize
	default:
		b, err := hex.DecodeString(raw)
		return err == nil && len(b) == SecretSize
	}
}
