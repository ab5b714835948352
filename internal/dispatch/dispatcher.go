package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Handler consumes one dispatched item on the dispatcher goroutine.
type Handler[T any] func(ctx context.Context, item T)

// Dispatcher forwards items to a handler from one background goroutine, in
// submission order.
type Dispatcher[T any] struct {
	queue  chan T
	handle Handler[T]
	lossy  bool

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	quit     chan struct{}
	drain    chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	dropped atomic.Uint64
}

// New starts a dispatcher. It returns nil when cfg.Enabled is false; every
// method is safe to call on a nil dispatcher.
func New[T any](cfg Config, handle Handler[T]) *Dispatcher[T] {
	if !cfg.Enabled {
		return nil
	}
	if handle == nil {
		handle = func(context.Context, T) {}
	}
	d := &Dispatcher[T]{
		queue:    make(chan T, max(cfg.BufferSize, 1)),
		handle:   handle,
		lossy:    cfg.DropIfFull,
		quit:     make(chan struct{}),
		drain:    make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher[T]) loop() {
	defer close(d.finished)
	ctx := context.Background()
	for {
		select {
		case item := <-d.queue:
			d.handle(ctx, item)
		case <-d.drain:
			for len(d.queue) > 0 {
				d.handle(ctx, <-d.queue)
			}
			return
		}
	}
}

// admit registers an in-flight Submit. It reports false once Close has begun.
func (d *Dispatcher[T]) admit() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.inflight.Add(1)
	return true
}

// Submit enqueues item. A lossy dispatcher drops the item when the buffer
// is full and counts it; otherwise Submit waits for room until ctx is done
// or the dispatcher closes. Submit after Close is a no-op.
func (d *Dispatcher[T]) Submit(ctx context.Context, item T) {
	if d == nil || !d.admit() {
		return
	}
	defer d.inflight.Done()

	if d.lossy {
		select {
		case d.queue <- item:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- item:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops accepting items and returns once everything already queued
// has been handled. Items enqueued by a Submit racing Close are handled too.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.quit)
	}
	d.mu.Unlock()

	d.inflight.Wait()
	d.stopOnce.Do(func() { close(d.drain) })
	<-d.finished
}

func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
