package authcore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

// collectEvents drains sink until want events arrived or a timeout passed.
func collectEvents(sink *ChannelSink, want int) []AuditEvent {
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seedUser(t, "alice")

	_, _ = env.engine.SignIn(context.Background(), "alice", "wrong-password-123", "203.0.113.1")
	env.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditSignInEventFields(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	user := env.seedUser(t, "alice")
	collectEvents(sink, 2) // sign_up + verification_issued

	if _, err := env.engine.SignIn(context.Background(), "alice", testPassword, "203.0.113.1"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	events := collectEvents(sink, 1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != auditEventSignInSuccess || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.UserID != user.ID || ev.Username != "alice" || ev.IP != "203.0.113.1" {
		t.Fatalf("unexpected event identity %+v", ev)
	}
	if !ev.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp from injected clock, got %v", ev.Timestamp)
	}
}

func TestAuditReuseEvent(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seedUser(t, "alice")
	ctx := context.Background()

	pair, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	_, _ = env.engine.Refresh(ctx, pair.RefreshToken, "")
	_, _ = env.engine.Refresh(ctx, pair.RefreshToken, "")

	for _, ev := range collectEvents(sink, 5) {
		if ev.EventType == auditEventRefreshReuseDetected {
			if ev.Success || ev.Error != string(auditErrRefreshReuse) || ev.Metadata["family_id"] == "" {
				t.Fatalf("unexpected reuse event %+v", ev)
			}
			return
		}
	}
	t.Fatal("expected a refresh_reuse_detected event")
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf syncBuffer
	env := newTestEnv(t, auditConfig(), func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&buf)) })
	user := env.seedUser(t, "alice")
	ctx := context.Background()

	pair, err := env.engine.SignIn(ctx, "alice", testPassword, "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	next, err := env.engine.Refresh(ctx, pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_ = env.engine.RecoverAccount(ctx, "alice@example.com")
	reset := env.notifier.last(t, "recover").token
	env.engine.Close()

	if !buf.Contains(auditEventRefreshSuccess) {
		t.Fatal("expected audit output")
	}
	for _, needle := range []string{testPassword, pair.RefreshToken, next.RefreshToken, pair.AccessToken, reset, user.PasswordHash} {
		if buf.Contains(needle) {
			t.Fatalf("sensitive value leaked in audit output: %q", needle)
		}
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrUnauthorized, auditErrUnauthorized},
		{ErrAccountUnverified, auditErrAccountUnverified},
		{ErrRefreshReuse, auditErrRefreshReuse},
		{ErrRefreshInvalid, auditErrInvalidToken},
		{ErrInvalidOrExpiredToken, auditErrInvalidToken},
		{ErrEmailRequired, auditErrEmailRequired},
		{ErrUsernameRequired, auditErrUsernameRequired},
		{ErrUsernameTaken, auditErrDuplicate},
		{errors.Join(ErrPasswordPolicy, errors.New("too short")), auditErrPasswordPolicy},
		{ErrBackendUnavailable, auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAuditSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventSignOut, Success: true, UserID: "u1"})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventRefreshReuseDetected, Error: string(auditErrRefreshReuse)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"INFO"`) || !strings.Contains(lines[0], `"user_id":"u1"`) {
		t.Fatalf("unexpected success line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"WARN"`) {
		t.Fatalf("expected failure at warn level, got %s", lines[1])
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
