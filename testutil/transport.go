package testutil

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"maps"
	"sync"
	"time"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/transport"
)

// Handler answers one scripted call.
type Handler func(ctx context.Context, req *transport.Request) (*transport.Result, error)

// Call is a recorded exchange.
type Call struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	At      time.Time
}

// Transport is a scripted, recording transport.Transport.
type Transport struct {
	mu          sync.Mutex
	handlers    []Handler
	fallback    Handler
	calls       []Call
	gate        chan struct{}
	inFlight    int
	maxInFlight int
	changed     chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns a transport answering 200 with an empty JSON object
// until handlers are pushed.
func NewTransport() *Transport {
	return &Transport{
		fallback: JSON(200, map[string]any{}),
		changed:  make(chan struct{}),
	}
}

// Push queues handlers for the next calls, in order.
func (t *Transport) Push(handlers ...Handler) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handlers...)
	return t
}

// Fallback sets the handler used once the pushed handlers are consumed.
func (t *Transport) Fallback(h Handler) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = h
	return t
}

// Block holds every subsequent call until the returned release function is
// called or the call's context is done.
func (t *Transport) Block() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.gate == gate {
				t.gate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// Execute implements transport.Transport.
func (t *Transport) Execute(ctx context.Context, req *transport.Request) (*transport.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, Call{
		Method:  req.Method,
		URL:     req.URL,
		Headers: maps.Clone(req.Headers),
		Body:    append([]byte(nil), req.Body...),
		At:      time.Now(),
	})
	h := t.fallback
	if len(t.handlers) > 0 {
		h = t.handlers[0]
		t.handlers = t.handlers[1:]
	}
	gate := t.gate
	t.inFlight++
	t.maxInFlight = max(t.maxInFlight, t.inFlight)
	t.notify()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight--
		t.notify()
		t.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctxError(ctx, req)
		}
	}
	return h(ctx, req)
}

// notify wakes WaitFor callers. Callers hold t.mu.
func (t *Transport) notify() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// WaitFor blocks until cond holds or timeout elapses, and reports whether it
// held. cond is evaluated under the transport lock after every call start and
// end.
func (t *Transport) WaitFor(timeout time.Duration, cond func(t *Transport) bool) bool {
	deadline := time.After(timeout)
	for {
		t.mu.Lock()
		ok := cond(t)
		changed := t.changed
		t.mu.Unlock()
		if ok {
			return true
		}
		select {
		case <-changed:
		case <-deadline:
			return false
		}
	}
}

// WaitForCalls waits until at least n calls have started.
func (t *Transport) WaitForCalls(n int, timeout time.Duration) bool {
	return t.WaitFor(timeout, func(t *Transport) bool { return len(t.calls) >= n })
}

// WaitForInFlight waits until exactly n calls are in flight.
func (t *Transport) WaitForInFlight(n int, timeout time.Duration) bool {
	return t.WaitFor(timeout, func(t *Transport) bool { return t.inFlight == n })
}

// Calls returns the recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount returns the number of recorded calls.
func (t *Transport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// InFlight returns the number of calls currently executing.
func (t *Transport) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (t *Transport) MaxInFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight
}

// Respond answers with status and a raw body.
func Respond(status int, contentType, body string) Handler {
	return func(context.Context, *transport.Request) (*transport.Result, error) {
		headers := map[string]string{}
		if contentType != "" {
			headers["Content-Type"] = contentType
		}
		return &transport.Result{StatusCode: status, Headers: headers, Body: []byte(body)}, nil
	}
}

// JSON answers with status and v encoded as JSON.
func JSON(status int, v any) Handler {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Respond(status, "application/json", string(body))
}

// Fail answers with a transport error.
func Fail(err error) Handler {
	return func(context.Context, *transport.Request) (*transport.Result, error) {
		return nil, err
	}
}

// Hang never answers; it returns when ctx is done, classified the way the
// HTTP transport classifies it.
func Hang() Handler {
	return func(ctx context.Context, req *transport.Request) (*transport.Result, error) {
		<-ctx.Done()
		return nil, ctxError(ctx, req)
	}
}

// Delay waits d, or until ctx is done, before running next.
func Delay(d time.Duration, next Handler) Handler {
	return func(ctx context.Context, req *transport.Request) (*transport.Result, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return next(ctx, req)
		case <-ctx.Done():
			return nil, ctxError(ctx, req)
		}
	}
}

func ctxError(ctx context.Context, req *transport.Request) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Timeout(req.URL).WithCause(ctx.Err())
	}
	return errors.Cancelled().WithCause(ctx.Err())
}
