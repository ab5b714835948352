package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testAccessSecret = "0123456789abcdef0123456789abcdef-test"

const testPassword = "correct-password-123"

// testConfig keeps argon2 cheap and delivers mail inline so tests can assert
// on it without waiting.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testAccessSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Mail.Async = false
	cfg.Storage.RedisPrefix = "test"
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]User{}}
}

func (s *memUserStore) find(match func(User) bool) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *memUserStore) GetByUsername(_ context.Context, username string) (User, error) {
	return s.find(func(u User) bool { return u.Username == username })
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	return s.find(func(u User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *memUserStore) GetByID(_ context.Context, userID string) (User, error) {
	return s.find(func(u User) bool { return u.ID == userID })
}

func (s *memUserStore) Create(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return User{}, ErrUserExists
		}
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *memUserStore) MarkVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Verified = true
	s.users[userID] = u
	return nil
}

func (s *memUserStore) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.users[userID] = u
	return nil
}

type sentMail struct {
	kind  string
	email string
	name  string
	token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) record(m sentMail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return n.err
}

func (n *recordingNotifier) SendVerificationPrompt(_ context.Context, email, token string) error {
	return n.record(sentMail{kind: "verify", email: email, token: token})
}

func (n *recordingNotifier) SendAccountRecoveryPrompt(_ context.Context, email, name, token string) error {
	return n.record(sentMail{kind: "recover", email: email, name: name, token: token})
}

func (n *recordingNotifier) SendTokenReusedMail(_ context.Context, email, name string) error {
	return n.record(sentMail{kind: "reused", email: email, name: name})
}

func (n *recordingNotifier) all() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMail, len(n.sent))
	copy(out, n.sent)
	return out
}

// last returns the most recent mail of kind, failing the test when none was sent.
func (n *recordingNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	sent := n.all()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].kind == kind {
			return sent[i]
		}
	}
	t.Fatalf("no %q mail sent, got %+v", kind, sent)
	return sentMail{}
}

func (n *recordingNotifier) count(kind string) int {
	c := 0
	for _, m := range n.all() {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type testEnv struct {
	engine   *Engine
	users    *memUserStore
	notifier *recordingNotifier
	clock    *fakeClock
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

func newTestEnv(t testing.TB, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		users:    newMemUserStore(),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
		mr:       mr,
		rdb:      rdb,
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailNotifier(env.notifier).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// seedUser signs up username and marks it verified.
func (env *testEnv) seedUser(t testing.TB, username string) User {
	t.Helper()
	ctx := context.Background()

	if err := env.engine.SignUp(ctx, username+"@example.com", username, testPassword); err != nil {
		t.Fatalf("sign up %s failed: %v", username, err)
	}
	user, err := env.users.GetByUsername(ctx, username)
	if err != nil {
		t.Fatalf("load %s failed: %v", username, err)
	}
	if err := env.users.MarkVerified(ctx, user.ID); err != nil {
		t.Fatalf("verify %s failed: %v", username, err)
	}
	user.Verified = true
	return user
}

// racingUserStore inserts rival just before the first Create, as if another
// request had won the race between the lookup and the insert.
type racingUserStore struct {
	*memUserStore
	rival User
	once  sync.Once
}

func (s *racingUserStore) Create(ctx context.Context, user User) (User, error) {
	s.once.Do(func() {
		_, _ = s.memUserStore.Create(ctx, s.rival)
	})
	return s.memUserStore.Create(ctx, user)
}

func newRacingEnv(t testing.TB, rival User) (*testEnv, *racingUserStore) {
	t.Helper()
	racing := &racingUserStore{memUserStore: newMemUserStore(), rival: rival}
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithUserStore(racing) })
	env.users = racing.memUserStore
	return env, racing
}
