package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/userstore"
)

const loadPassword = "load-test-password-1"

// userState is one seeded account. mu serializes rotations of its refresh
// token so no worker presents a rotated one.
type userState struct {
	username string
	access   string
	mu       sync.Mutex
	refresh  string
}

func main() {
	cmd := &cli.Command{
		Name:  "authcore-loadtest",
		Usage: "Drive access validation and refresh rotation against Redis",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Value: 1000, Usage: "number of accounts to seed"},
			&cli.IntFlag{Name: "concurrency", Value: 64, Usage: "number of concurrent workers"},
			&cli.IntFlag{Name: "ops", Value: 50000, Usage: "operations per phase"},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "redis address; miniredis is started when empty",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{Name: "prefix", Value: "lt", Usage: "redis key prefix"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level: debug, info, warn, error"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
}

func run(ctx context.Context, cmd *cli.Command) error {
	users := int(cmd.Int("users"))
	concurrency := int(cmd.Int("concurrency"))
	ops := int(cmd.Int("ops"))
	if users <= 0 || concurrency <= 0 || ops <= 0 {
		return errors.New("users, concurrency and ops must be > 0")
	}

	logger := setupLogger(cmd.String("log-level"))

	client, cleanup, err := openRedis(cmd.String("redis-addr"), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := userstore.Open(ctx, userstore.DriverSQLite, ":memory:")
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer db.Close()
	store := userstore.New(db)

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("authcore-loadtest-signing-key-0123456789")
	cfg.Storage.RedisPrefix = cmd.String("prefix")
	cfg.Verification.RequireForSignIn = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Mail.Async = false
	cfg.Metrics.Enabled = true

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	states, err := seed(ctx, engine, users, logger)
	if err != nil {
		return err
	}

	logger.Info("phase done", "phase", runPhase("validate", ops, concurrency, func(r *rand.Rand) error {
		_, err := engine.ValidateAccess(ctx, states[r.IntN(len(states))].access)
		return err
	}))
	logger.Info("phase done", "phase", runPhase("refresh", ops, concurrency, func(r *rand.Rand) error {
		s := states[r.IntN(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Refresh(ctx, s.refresh, "")
		if err != nil {
			return err
		}
		s.refresh = pair.RefreshToken
		return nil
	}))

	snap := engine.MetricsSnapshot()
	logger.Info("engine counters",
		"refresh_success", snap.Counters[authcore.MetricRefreshSuccess],
		"refresh_reuse", snap.Counters[authcore.MetricRefreshReuseDetected],
		"access_valid", snap.Counters[authcore.MetricAccessValid],
	)
	return nil
}

func openRedis(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", "addr", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", "addr", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, engine *authcore.Engine, n int, logger *slog.Logger) ([]*userState, error) {
	logger.Info("seeding users", "count", n)
	start := time.Now()

	states := make([]*userState, n)
	for i := range states {
		username := fmt.Sprintf("user%d", i)
		if err := engine.SignUp(ctx, username+"@load.test", username, loadPassword); err != nil {
			return nil, fmt.Errorf("sign up %s: %w", username, err)
		}
		pair, err := engine.SignIn(ctx, username, loadPassword, "")
		if err != nil {
			return nil, fmt.Errorf("sign in %s: %w", username, err)
		}
		states[i] = &userState{username: username, access: pair.AccessToken, refresh: pair.RefreshToken}
	}

	logger.Info("seeded", "elapsed", time.Since(start).Round(time.Millisecond))
	return states, nil
}

// phaseResult is the outcome of one phase. samples is sorted ascending.
type phaseResult struct {
	name    string
	elapsed time.Duration
	samples []time.Duration
	failed  int64
}

// quantile returns the nearest-rank sample at q in [0, 1].
func (p phaseResult) quantile(q float64) time.Duration {
	if len(p.samples) == 0 {
		return 0
	}
	i := int(q*float64(len(p.samples))+0.5) - 1
	return p.samples[min(max(i, 0), len(p.samples)-1)]
}

func (p phaseResult) LogValue() slog.Value {
	var rate float64
	if p.elapsed > 0 {
		rate = float64(len(p.samples)) / p.elapsed.Seconds()
	}
	return slog.GroupValue(
		slog.String("name", p.name),
		slog.Int("ops", len(p.samples)),
		slog.Int64("failed", p.failed),
		slog.Duration("elapsed", p.elapsed.Round(time.Millisecond)),
		slog.Int64("ops_per_sec", int64(rate)),
		slog.Duration("p50", p.quantile(0.50).Round(time.Microsecond)),
		slog.Duration("p95", p.quantile(0.95).Round(time.Microsecond)),
		slog.Duration("p99", p.quantile(0.99).Round(time.Microsecond)),
	)
}

// runPhase spreads ops calls of op over workers goroutines, each with its
// own random source.
func runPhase(name string, ops, workers int, op func(r *rand.Rand) error) phaseResult {
	var (
		remaining atomic.Int64
		failed    atomic.Int64
		wg        sync.WaitGroup
	)
	remaining.Store(int64(ops))
	perWorker := make([][]time.Duration, workers)

	start := time.Now()
	for w := range perWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)))
			for remaining.Add(-1) >= 0 {
				t0 := time.Now()
				if op(r) != nil {
					failed.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(t0))
			}
		}()
	}
	wg.Wait()

	res := phaseResult{name: name, elapsed: time.Since(start), failed: failed.Load()}
	res.samples = slices.Concat(perWorker...)
	slices.Sort(res.samples)
	return res
}
