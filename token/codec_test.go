package token

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestGenerateHexIs256Bits(t *testing.T) {
	c := NewCodec(nil, EncodingHex)

	raw, err := c.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(raw))
	}
	if !c.WellFormed(raw) {
		t.Fatalf("expected %q to be well formed", raw)
	}

	other, err := c.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if raw == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestGenerateBase64URL(t *testing.T) {
	c := NewCodec(bytes.NewReader(bytes.Repeat([]byte{0xfb}, SecretSize)), EncodingBase64URL)

	raw, err := c.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(raw) != 43 || strings.ContainsAny(raw, "+/=") {
		t.Fatalf("expected unpadded base64url, got %q", raw)
	}
	if !c.WellFormed(raw) {
		t.Fatalf("expected %q to be well formed", raw)
	}
}

func TestGenerateFailsOnShortEntropy(t *testing.T) {
	c := NewCodec(bytes.NewReader([]byte{1, 2, 3}), EncodingHex)
	if _, err := c.Generate(); err == nil {
		t.Fatal("expected short reader to fail")
	}
}

func TestDigestIsSHA256Hex(t *testing.T) {
	c := NewCodec(nil, EncodingHex)
	sum := sha256.Sum256([]byte("raw-token"))

	if got, want := c.Digest("raw-token"), hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("digest mismatch: got %s want %s", got, want)
	}
	if c.Digest("raw-token") != Digest("raw-token") {
		t.Fatal("expected method and package digests to agree")
	}
	if c.Digest("raw-token") == c.Digest("raw-tokem") {
		t.Fatal("expected different inputs to digest differently")
	}
}

func TestWellFormedRejectsGarbage(t *testing.T) {
	c := NewCodec(nil, EncodingHex)
	for _, raw := range []string{"", "zz", strings.Repeat("a", 63), strings.Repeat("g", 64)} {
		if c.WellFormed(raw) {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
