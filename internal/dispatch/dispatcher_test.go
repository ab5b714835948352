package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockedDispatcher returns a dispatcher whose handler parks on the first
// item until release is called.
func blockedDispatcher(t *testing.T, cfg Config) (d *Dispatcher[int], release func(), got func() []int) {
	t.Helper()
	var (
		mu    sync.Mutex
		items []int
	)
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	cfg.Enabled = true
	d = New(cfg, func(_ context.Context, v int) {
		once.Do(func() {
			close(entered)
			<-gate
		})
		mu.Lock()
		items = append(items, v)
		mu.Unlock()
	})
	d.Submit(context.Background(), 0)
	<-entered

	var releaseOnce sync.Once
	release = func() { releaseOnce.Do(func() { close(gate) }) }
	t.Cleanup(func() {
		release()
		d.Close()
	})
	got = func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), items...)
	}
	return d, release, got
}

func TestNilDispatcher(t *testing.T) {
	d := New[string](Config{BufferSize: 8}, nil)
	if d != nil {
		t.Fatal("disabled config should yield a nil dispatcher")
	}
	d.Submit(context.Background(), "ignored")
	d.Close()
	if n := d.Dropped(); n != 0 {
		t.Fatalf("Dropped = %d", n)
	}
}

func TestCloseDrainsInOrder(t *testing.T) {
	d, release, got := blockedDispatcher(t, Config{BufferSize: 16})
	for i := 1; i <= 10; i++ {
		d.Submit(context.Background(), i)
	}
	release()
	d.Close()

	items := got()
	if len(items) != 11 {
		t.Fatalf("handled %d items, want 11", len(items))
	}
	for i, v := range items {
		if v != i {
			t.Fatalf("items out of order: %v", items)
		}
	}
}

func TestLossyDispatcherCountsDrops(t *testing.T) {
	d, release, got := blockedDispatcher(t, Config{BufferSize: 2, DropIfFull: true})
	for i := 1; i <= 6; i++ {
		d.Submit(context.Background(), i)
	}
	if n := d.Dropped(); n != 4 {
		t.Fatalf("Dropped = %d, want 4", n)
	}
	release()
	d.Close()
	if items := got(); len(items) != 3 {
		t.Fatalf("handled %v, want the first three items", items)
	}
}

func TestBlockingSubmitWaitsForContext(t *testing.T) {
	d, _, _ := blockedDispatcher(t, Config{BufferSize: 1})
	d.Submit(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Submit(ctx, 2)

	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Fatalf("Submit returned after %v, expected it to wait for the deadline", waited)
	}
	if n := d.Dropped(); n != 0 {
		t.Fatalf("blocking mode counted %d drops", n)
	}
}

func TestBlockedSubmitReturnsOnClose(t *testing.T) {
	d, release, _ := blockedDispatcher(t, Config{BufferSize: 1})
	d.Submit(context.Background(), 1)

	returned := make(chan struct{})
	go func() {
		d.Submit(context.Background(), 2)
		close(returned)
	}()

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("blocked Submit did not return after Close")
	}
	release()
	<-closed
}

func TestSubmitAfterClose(t *testing.T) {
	handled := make(chan int, 4)
	d := New(Config{Enabled: true, BufferSize: 4}, func(_ context.Context, v int) { handled <- v })
	d.Close()
	d.Close()

	d.Submit(context.Background(), 1)
	if len(handled) != 0 || d.Dropped() != 0 {
		t.Fatal("Submit after Close should be a silent no-op")
	}
}

func TestSubmitRacingCloseLeavesNothingQueued(t *testing.T) {
	for _, lossy := range []bool{true, false} {
		for round := 0; round < 200; round++ {
			var handled atomic.Uint64
			d := New(Config{Enabled: true, BufferSize: 4, DropIfFull: lossy}, func(context.Context, int) {
				handled.Add(1)
			})

			var wg sync.WaitGroup
			for g := 0; g < 4; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 8; i++ {
						d.Submit(context.Background(), i)
					}
				}()
			}
			d.Close()
			after := handled.Load()
			wg.Wait()

			if n := len(d.queue); n != 0 {
				t.Fatalf("lossy=%v round %d: %d items stranded in the queue after Close", lossy, round, n)
			}
			if got := handled.Load(); got != after {
				t.Fatalf("lossy=%v round %d: handler ran after Close returned (%d -> %d)", lossy, round, after, got)
			}
			if total := handled.Load() + d.Dropped(); total > 32 {
				t.Fatalf("lossy=%v round %d: accounted for %d of 32 items", lossy, round, total)
			}
		}
	}
}
