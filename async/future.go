package async

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Resolve settles a Future. Only the first call has an effect; it reports
// whether this call settled the future.
type Resolve[T any] func(value T, err error) bool

// NewPromise returns an unsettled Future and the function that settles it.
func NewPromise[T any]() (*Future[T], Resolve[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.settle
}

// Resolved returns an already settled Future.
func Resolved[T any](value T, err error) *Future[T] {
	f, resolve := NewPromise[T]()
	resolve(value, err)
	return f
}

// Go runs fn in a new goroutine and returns its Future.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f, resolve := NewPromise[T]()
	go func() {
		resolve(fn(ctx))
	}()
	return f
}

func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done. A ctx error does not
// settle the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value and error. ok is false if the future has
// not settled yet.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	if !f.Settled() {
		return value, nil, false
	}
	return f.value, f.err, true
}

// Then returns a Future settled with fn applied to this future's result.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next, resolve := NewPromise[U]()
	go func() {
		<-f.done
		resolve(fn(f.value, f.err))
	}()
	return next
}

// All waits for every future and returns their values in input order. The
// first error in input order is returned alongside the values.
func All[T any](ctx context.Context, futures []*Future[T]) ([]T, error) {
	values := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		v, err := f.Await(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return values, ctxErr
		}
		values[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return values, firstErr
}
