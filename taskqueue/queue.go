package taskqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/errors"
)

// Step is one unit of serialized work. prev is the error of the step that ran
// before it, or nil.
type Step[T any] func(ctx context.Context, prev error) (T, error)

// Queue serializes steps in enqueue order.
type Queue struct {
	mu   sync.Mutex
	tail *link
}

// link is the settlement record of one enqueued step.
type link struct {
	done chan struct{}
	err  error
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends step to q and returns its future. If ctx is done before the
// step starts, the step is skipped and settles with ctx.Err().
func Enqueue[T any](ctx context.Context, q *Queue, step Step[T]) *async.Future[T] {
	f, resolve := async.NewPromise[T]()

	q.mu.Lock()
	prev := q.tail
	current := &link{done: make(chan struct{})}
	q.tail = current
	q.mu.Unlock()

	go func() {
		var prevErr error
		if prev != nil {
			<-prev.done
			prevErr = prev.err
		}

		var (
			value T
			err   error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			value, err = run(ctx, step, prevErr)
		}

		current.err = err
		close(current.done)
		resolve(value, err)
	}()

	return f
}

// Do is Enqueue for steps without a result.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) *async.Future[struct{}] {
	return Enqueue(ctx, q, func(ctx context.Context, _ error) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Wait blocks until every step enqueued so far has settled.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes step, turning a panic into a LOCAL_INTERNAL error so the chain
// keeps moving.
func run[T any](ctx context.Context, step Step[T], prev error) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.LocalInternal(fmt.Errorf("task panicked: %v", r))
		}
	}()
	return step(ctx, prev)
}
