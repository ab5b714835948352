package authcore

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without secret to be invalid")
	}

	cfg.JWT.PrivateKey = []byte(testAccessSecret)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with secret to be valid, got %v", err)
	}

	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.Refresh.TTL != 30*24*time.Hour {
		t.Fatalf("unexpected token lifetimes: %v %v", cfg.JWT.AccessTTL, cfg.Refresh.TTL)
	}
	if cfg.Verification.TTL != 10*time.Minute || cfg.PasswordReset.TTL != 10*time.Minute {
		t.Fatalf("unexpected single-use lifetimes: %v %v", cfg.Verification.TTL, cfg.PasswordReset.TTL)
	}
}

func TestConfigValidate(t *testing.T) {
	accepted := map[string]func(*Config){
		"leeway 45s":           func(c *Config) { c.JWT.Leeway = 45 * time.Second },
		"session family scope": func(c *Config) { c.Refresh.FamilyScope = FamilyScopeSession },
		"base64url tokens":     func(c *Config) { c.Refresh.TokenEncoding = "base64url" },
		"sync mail no buffer":  func(c *Config) { c.Mail.Async, c.Mail.BufferSize = false, 0 },
		"audit off no buffer":  func(c *Config) { c.Audit.Enabled, c.Audit.BufferSize = false, 0 },
	}
	rejected := map[string]func(*Config){
		"leeway 3m":             func(c *Config) { c.JWT.Leeway = 3 * time.Minute },
		"blank audience":        func(c *Config) { c.JWT.Audience = "   " },
		"short hmac secret":     func(c *Config) { c.JWT.PrivateKey = []byte("short") },
		"rs256":                 func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"ed25519 no public key": func(c *Config) { c.JWT.SigningMethod = "ed25519" },
		"refresh not > access":  func(c *Config) { c.Refresh.TTL = c.JWT.AccessTTL },
		"device family scope":   func(c *Config) { c.Refresh.FamilyScope = "device" },
		"base32 tokens":         func(c *Config) { c.Refresh.TokenEncoding = "base32" },
		"zero verification ttl": func(c *Config) { c.Verification.TTL = 0 },
		"negative reset ttl":    func(c *Config) { c.PasswordReset.TTL = -time.Second },
		"argon2 1 MiB":          func(c *Config) { c.Password.Memory = 1024 },
		"argon2 short salt":     func(c *Config) { c.Password.SaltLength = 8 },
		"blank redis prefix":    func(c *Config) { c.Storage.RedisPrefix = " " },
		"async mail no buffer":  func(c *Config) { c.Mail.Async, c.Mail.BufferSize = true, 0 },
		"audit on no buffer":    func(c *Config) { c.Audit.Enabled, c.Audit.BufferSize = true, 0 },
	}

	for name, mutate := range accepted {
		t.Run("ok/"+name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
	for name, mutate := range rejected {
		t.Run("bad/"+name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
		})
	}
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30d", 30 * 24 * time.Hour},
		{"15m", 15 * time.Minute},
		{"10 m", 10 * time.Minute},
		{"2h", 2 * time.Hour},
		{"45s", 45 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"1.5h", 90 * time.Minute},
		{"1500", 1500 * time.Millisecond},
		{"1h30m", 90 * time.Minute},
	}

	for _, tc := range tests {
		got, err := ParseTTL(tc.in)
		if err != nil {
			t.Fatalf("ParseTTL(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTTL(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "d", "10 weeks", "abc"} {
		if _, err := ParseTTL(bad); err == nil {
			t.Fatalf("expected ParseTTL(%q) to fail", bad)
		}
	}
}
