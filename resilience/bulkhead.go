package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common bulkhead errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for metrics/logging.
	Name string
	// MaxConcurrent is the initial number of concurrent calls. 0 admits nothing
	// until the bulkhead is resized.
	MaxConcurrent int
	// MaxWait is how long Execute waits for a slot. 0 means fail immediately.
	MaxWait time.Duration
	// OnReject is called when a call is rejected.
	OnReject func(name string)
	// OnAcquire is called when a slot is acquired.
	OnAcquire func(name string)
	// OnRelease is called when a slot is released.
	OnRelease func(name string)
	// OnResize is called after the capacity changes.
	OnResize func(name string, from, to int)
}

// DefaultBulkheadConfig returns sensible defaults.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:          name,
		MaxConcurrent: 4,
	}
}

// Bulkhead limits concurrent calls. Unlike a fixed semaphore its capacity can
// change at runtime: growing wakes waiters, shrinking only delays new
// admissions until enough running calls have released their slots.
type Bulkhead struct {
	config BulkheadConfig

	mu    sync.Mutex
	max   int
	inUse int
	wake  chan struct{}
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent < 0 {
		config.MaxConcurrent = 0
	}
	return &Bulkhead{
		config: config,
		max:    config.MaxConcurrent,
		wake:   make(chan struct{}),
	}
}

// Execute runs fn within the bulkhead, waiting up to the configured MaxWait.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx, b.config.MaxWait); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// ExecuteWithResult runs a function that returns a value.
func ExecuteWithResult[T any](b *Bulkhead, ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// Acquire takes a slot, waiting up to maxWait for one to free up. It returns
// ErrBulkheadFull when maxWait is 0 and no slot is free, ErrBulkheadTimeout
// when the wait elapses, or ctx.Err().
func (b *Bulkhead) Acquire(ctx context.Context, maxWait time.Duration) error {
	var deadline <-chan time.Time
	for {
		b.mu.Lock()
		if b.inUse < b.max {
			b.inUse++
			b.mu.Unlock()
			if b.config.OnAcquire != nil {
				b.config.OnAcquire(b.config.Name)
			}
			return nil
		}
		wake := b.wake
		b.mu.Unlock()

		if maxWait <= 0 {
			b.reject()
			return ErrBulkheadFull
		}
		if deadline == nil {
			timer := time.NewTimer(maxWait)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case <-wake:
		case <-deadline:
			b.reject()
			return ErrBulkheadTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	if b.inUse > 0 {
		b.inUse--
	}
	b.broadcast()
	b.mu.Unlock()

	if b.config.OnRelease != nil {
		b.config.OnRelease(b.config.Name)
	}
}

// Resize changes the capacity. Running calls keep their slots.
func (b *Bulkhead) Resize(n int) {
	if n < 0 {
		n = 0
	}
	b.mu.Lock()
	from := b.max
	b.max = n
	b.broadcast()
	b.mu.Unlock()

	if from != n && b.config.OnResize != nil {
		b.config.OnResize(b.config.Name, from, n)
	}
}

// broadcast wakes every waiter. Callers hold b.mu.
func (b *Bulkhead) broadcast() {
	close(b.wake)
	b.wake = make(chan struct{})
}

func (b *Bulkhead) reject() {
	if b.config.OnReject != nil {
		b.config.OnReject(b.config.Name)
	}
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return max(b.max-b.inUse, 0)
}

// InUse returns the number of slots currently in use. It can exceed
// MaxConcurrent right after a shrink.
func (b *Bulkhead) InUse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// MaxConcurrent returns the current capacity.
func (b *Bulkhead) MaxConcurrent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max
}
