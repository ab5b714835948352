package authcore

import (
	"context"
	"testing"
)

func BenchmarkValidateAccess(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seedUser(b, "alice")

	pair, err := env.engine.SignIn(context.Background(), "alice", testPassword, "")
	if err != nil {
		b.Fatalf("sign in failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.ValidateAccess(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seedUser(b, "alice")

	pair, err := env.engine.SignIn(context.Background(), "alice", testPassword, "")
	if err != nil {
		b.Fatalf("sign in failed: %v", err)
	}
	refresh := pair.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := env.engine.Refresh(context.Background(), refresh, "")
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkSignIn(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seedUser(b, "alice")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := env.engine.SignIn(context.Background(), "alice", testPassword, "")
		if err != nil {
			b.Fatalf("sign in failed: %v", err)
		}
		_ = env.engine.SignOut(context.Background(), pair.RefreshToken)
	}
}
