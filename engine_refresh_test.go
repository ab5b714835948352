package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSignInIssuesAccessForUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	user := env.seedUser(t, "alice")
	ctx := context.Background()

	pair, err := env.engine.SignIn(ctx, "alice", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	claims, err := env.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access failed: %v", err)
	}
	if claims.UserID() != user.ID || claims.Username != "alice" {
		t.Fatalf("unexpected claims: sub=%q usr=%q", claims.UserID(), claims.Username)
	}
	if !pair.AccessExpiresAt.Equal(env.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", pair.AccessExpiresAt)
	}
	if pair.RefreshToken == "" || pair.RefreshToken == pair.AccessToken {
		t.Fatal("expected distinct opaque refresh token")
	}
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	env := newTestEnv(t, testConfig())
	user := env.seedUser(t, "alice")
	ctx := context.Background()

	first, err := env.engine.SignIn(ctx, "alice", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	second, err := env.engine.Refresh(ctx, first.RefreshToken, "10.0.0.2")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	claims, err := env.engine.ValidateAccess(ctx, second.AccessToken)
	if err != nil || claims.UserID() != user.ID {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, "10.0.0.3"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse on replay, got %v", err)
	}
}

func TestRefreshReplayRevokesLineage(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice")
	ctx := context.Background()

	first, _ := env.engine.SignIn(ctx, "alice", testPassword, "10.0.0.1")
	second, err := env.engine.Refresh(ctx, first.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, "10.6.6.6"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, second.RefreshToken, "10.0.0.1"); err == nil {
		t.Fatal("expected newest token to be revoked after reuse")
	}

	reused := env.notifier.last(t, "reused")
	if reused.email != "alice@example.com" || reused.token != "" {
		t.Fatalf("unexpected reuse notice %+v", reused)
	}
}

func TestRefreshUnknownAndMalformedTokens(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, raw := range []string{"", "not-a-token", "0000000000000000000000000000000000000000000000000000000000000000"} {
		_, err := env.engine.Refresh(ctx, raw, "")
		if !errors.Is(err, ErrRefreshInvalid) || !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("refresh(%q): expected ErrRefreshInvalid, got %v", raw, err)
		}
	}
}

func TestRefreshExpiryBoundary(t *testing.T) {
	cfg := testConfig()
	env := newTestEnv(t, cfg)
	env.seedUser(t, "alice")
	ctx := context.Background()

	pair, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	env.clock.Advance(cfg.Refresh.TTL - time.Millisecond)
	next, err := env.engine.Refresh(ctx, pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh just before expiry failed: %v", err)
	}

	env.clock.Advance(cfg.Refresh.TTL)
	if _, err := env.engine.Refresh(ctx, next.RefreshToken, ""); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid at expiresAt == now, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice")

	pair, err := env.engine.SignIn(context.Background(), "alice", testPassword, "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), pair.RefreshToken, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrRefreshReuse) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
}

func TestUserFamilyScopeKeepsOneActiveToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice")
	ctx := context.Background()

	first, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	second, _ := env.engine.SignIn(ctx, "alice", testPassword, "")

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, ""); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected superseded token to be invalid, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, second.RefreshToken, ""); err != nil {
		t.Fatalf("expected latest token to refresh, got %v", err)
	}
}

func TestSessionFamilyScopeAllowsParallelFamilies(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.FamilyScope = FamilyScopeSession
	env := newTestEnv(t, cfg)
	env.seedUser(t, "alice")
	ctx := context.Background()

	laptop, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	phone, _ := env.engine.SignIn(ctx, "alice", testPassword, "")

	if _, err := env.engine.Refresh(ctx, laptop.RefreshToken, ""); err != nil {
		t.Fatalf("laptop refresh failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, phone.RefreshToken, ""); err != nil {
		t.Fatalf("phone refresh failed: %v", err)
	}

	// Replaying the laptop's first token revokes the phone's family too.
	if _, err := env.engine.Refresh(ctx, laptop.RefreshToken, ""); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice")
	ctx := context.Background()

	pair, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	for i := 0; i < 2; i++ {
		if err := env.engine.SignOut(ctx, pair.RefreshToken); err != nil {
			t.Fatalf("sign out #%d failed: %v", i+1, err)
		}
	}
	if err := env.engine.SignOut(ctx, "garbage"); err != nil {
		t.Fatalf("sign out of garbage token failed: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected signed-out token replay to be reuse, got %v", err)
	}
}

func TestSignOutUserRevokesEveryFamily(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.FamilyScope = FamilyScopeSession
	env := newTestEnv(t, cfg)
	user := env.seedUser(t, "alice")
	ctx := context.Background()

	a, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	b, _ := env.engine.SignIn(ctx, "alice", testPassword, "")

	if err := env.engine.SignOutUser(ctx, user.ID); err != nil {
		t.Fatalf("sign out user failed: %v", err)
	}
	for _, raw := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, raw, ""); err == nil {
			t.Fatal("expected refresh after sign out to fail")
		}
	}
}

func TestRefreshBackendDownIsInternalFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "alice")
	ctx := context.Background()

	pair, _ := env.engine.SignIn(ctx, "alice", testPassword, "")
	env.mr.Close()

	_, err := env.engine.Refresh(ctx, pair.RefreshToken, "")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if errors.Is(err, ErrRefreshInvalid) || errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("backend failure must not look like a token failure: %v", err)
	}
}
