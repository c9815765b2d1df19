package runner

import (
	"context"
	stderrors "errors"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/resilience"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/transport"
)

// Options modify a single run.
type Options struct {
	// RetryIfFailed retries connection failures with backoff. Timeouts are
	// governed by the request's TimeoutPolicy instead.
	RetryIfFailed bool
}

// Runner executes requests with a reachability-bound concurrency cap.
type Runner struct {
	cfg        Config
	transport  transport.Transport
	serializer *serializer.Serializer
	bulkhead   *resilience.Bulkhead
	monitor    *reachability.Monitor
	metrics    *observability.Metrics
	log        *logger.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// Option configures a Runner.
type Option func(*Runner)

// WithMonitor follows m for capacity changes. Without a monitor the runner
// stays at the Unknown capacity.
func WithMonitor(m *reachability.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a runner. A nil serializer uses one without a type registry.
func New(cfg Config, tr transport.Transport, s *serializer.Serializer, opts ...Option) *Runner {
	cfg.ApplyDefaults()
	r := &Runner{
		cfg:        cfg,
		transport:  tr,
		serializer: s,
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrGlobal(r.log).WithComponent("runner")
	if r.serializer == nil {
		r.serializer = serializer.New(nil, serializer.WithLogger(r.log))
	}

	status := reachability.StatusUnknown
	if r.monitor != nil {
		status = r.monitor.Status()
	}
	r.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "runner",
		MaxConcurrent: cfg.Capacity.For(status),
	})
	if r.monitor != nil {
		r.monitor.AddListener(r)
	}
	return r
}

// Close stops following the reachability monitor.
func (r *Runner) Close() {
	if r.monitor != nil {
		r.monitor.RemoveListener(r)
	}
}

// ReachabilityChanged implements reachability.Listener.
func (r *Runner) ReachabilityChanged(_ *reachability.Monitor, status reachability.Status) {
	n := r.cfg.Capacity.For(status)
	from := r.bulkhead.MaxConcurrent()
	r.bulkhead.Resize(n)
	r.metrics.RecordCapacity(context.Background(), n, status.String())
	if from != n {
		r.log.Info("concurrency capacity changed", logger.Fields(
			logger.FieldReachability, status.String(),
			"from", from,
			"to", n,
		))
	}
}

// Capacity returns the current concurrency cap.
func (r *Runner) Capacity() int {
	return r.bulkhead.MaxConcurrent()
}

// InFlight returns the number of requests holding a slot.
func (r *Runner) InFlight() int {
	return r.bulkhead.InUse()
}

// RunAsync runs req in the background. The future always settles with a nil
// error; failures are carried by the response. Under TimeoutStopExecution a
// timed out request leaves the future unsettled.
func (r *Runner) RunAsync(ctx context.Context, req *rest.Request, opts Options) *async.Future[*rest.Response] {
	f, resolve := async.NewPromise[*rest.Response]()
	go func() {
		if resp := r.Run(ctx, req, opts); resp != nil {
			resolve(resp, nil)
		}
	}()
	return f
}

// Run executes req and returns its response. It returns nil only when the
// request timed out under TimeoutStopExecution.
func (r *Runner) Run(ctx context.Context, req *rest.Request, opts Options) *rest.Response {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanRun, trace.WithAttributes(
		attribute.String(observability.AttrRequestID, req.ID()),
		attribute.String(observability.AttrMethod, string(req.Method())),
		attribute.String(observability.AttrURL, req.URL()),
	))
	r.metrics.RecordRequestStart(ctx)

	resp := r.run(ctx, req, opts)

	outcome := outcomeOf(resp)
	r.metrics.RecordRequestEnd(ctx, string(req.Method()), outcome, time.Since(start))
	span.SetAttributes(attribute.String(observability.AttrOutcome, outcome))
	var err error
	if resp != nil {
		span.SetAttributes(attribute.Int(observability.AttrStatusCode, resp.StatusCode))
		if resp.Err != nil && !resp.Cancelled() {
			err = resp.Err
			r.metrics.RecordError(ctx, string(errors.CodeOf(err)), "runner")
		}
	}
	observability.EndSpan(span, err)
	return resp
}

func (r *Runner) run(ctx context.Context, req *rest.Request, opts Options) *rest.Response {
	if ctx.Err() != nil {
		return r.interrupted(ctx, req)
	}

	treq, err := buildRequest(req)
	if err != nil {
		return rest.NewErrorResponse(req, err)
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	attempts := 1
	if req.TimeoutPolicy() == rest.TimeoutRetry {
		attempts += max(req.RetryCount(), 0)
	}

	for attempt := 1; ; attempt++ {
		resp, err := r.attempt(ctx, req, treq, opts, timeout)
		if err == nil {
			return resp
		}
		if ctx.Err() != nil {
			return r.interrupted(ctx, req)
		}
		if !errors.Is(err, errors.ErrCodeTimeout) {
			return rest.NewErrorResponse(req, err)
		}

		switch req.TimeoutPolicy() {
		case rest.TimeoutStopExecution:
			r.log.Warn("request timed out under stop-execution policy, no result will be delivered",
				logger.RequestFields(req.ID(), string(req.Method()), req.URL()))
			return nil
		case rest.TimeoutRetry:
			if attempt < attempts {
				r.log.Debug("request timed out, retrying", logger.Fields(
					logger.FieldRequestID, req.ID(),
					logger.FieldAttempt, attempt,
				))
				continue
			}
		}
		return rest.NewErrorResponse(req, err)
	}
}

// interrupted builds the response for a run whose context is done.
func (r *Runner) interrupted(ctx context.Context, req *rest.Request) *rest.Response {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return rest.NewErrorResponse(req, errors.Timeout(req.URL()).WithCause(ctx.Err()))
	}
	return rest.NewCancelledResponse(req)
}

// attempt takes a slot and performs the exchange, retrying connection
// failures when asked to. A non-nil error is a transport-level failure; HTTP
// error statuses are reported through the response.
func (r *Runner) attempt(ctx context.Context, req *rest.Request, treq *transport.Request, opts Options, timeout time.Duration) (*rest.Response, error) {
	if err := r.acquire(ctx, req, timeout); err != nil {
		return nil, err
	}
	defer r.bulkhead.Release()

	call := func(ctx context.Context, attempt int) (*rest.Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return r.exchange(ctx, callCtx, req, treq)
	}
	if !opts.RetryIfFailed {
		return call(ctx, 1)
	}

	return resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    r.cfg.RetryAttempts,
		InitialBackoff: r.cfg.RetryBackoff,
		Jitter:         0.1,
		RetryIf: func(err error) bool {
			return resilience.DefaultRetryIf(err) && !errors.Is(err, errors.ErrCodeTimeout)
		},
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			r.log.Debug("retrying failed request", logger.MergeWithError(logger.Fields(
				logger.FieldRequestID, req.ID(),
				logger.FieldAttempt, attempt,
				"backoff_ms", backoff.Milliseconds(),
			), err))
		},
	}, call)
}

// acquire waits up to timeout for a slot. With no capacity at all, a request
// without a timeout policy fails at once.
func (r *Runner) acquire(ctx context.Context, req *rest.Request, timeout time.Duration) error {
	if r.bulkhead.MaxConcurrent() == 0 && req.TimeoutPolicy() == rest.TimeoutNone {
		return errors.NoInternetConnection()
	}
	err := r.bulkhead.Acquire(ctx, timeout)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, resilience.ErrBulkheadTimeout), stderrors.Is(err, resilience.ErrBulkheadFull):
		return errors.Timeout(req.URL()).WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout(req.URL()).WithCause(err)
	}
	return errors.Cancelled().WithCause(err)
}

// exchange performs one transport call under callCtx, a per-call deadline
// derived from ctx.
func (r *Runner) exchange(ctx, callCtx context.Context, req *rest.Request, treq *transport.Request) (*rest.Response, error) {
	host := hostOf(treq.URL)
	execute := func() (*transport.Result, error) {
		res, err := r.transport.Execute(callCtx, treq)
		if err != nil {
			return nil, transportError(ctx, callCtx, host, err)
		}
		return res, nil
	}

	var (
		res *transport.Result
		err error
	)
	if cb := r.breaker(host); cb != nil {
		res, err = resilience.Call(cb, execute)
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			err = errors.ConnectionFailed(host, err)
		}
	} else {
		res, err = execute()
	}
	if err != nil {
		return nil, err
	}
	return r.serializer.Serialize(req, res.StatusCode, res.Headers, res.Body), nil
}

// transportError maps a transport failure into the taxonomy. A failure after
// the per-call deadline expired is a TIMEOUT as long as the caller is still
// waiting.
func transportError(ctx, callCtx context.Context, host string, err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if ctx.Err() == nil && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.Timeout(host).WithCause(err)
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeTimeout:
		return errors.Timeout(host).WithCause(err)
	case errors.ErrCodeCancelled:
		return errors.Cancelled().WithCause(err)
	}
	return errors.ConnectionFailed(host, err)
}

func (r *Runner) breaker(host string) *resilience.CircuitBreaker {
	if !r.cfg.CircuitBreaker.Enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[host]
	if !ok {
		cfg := r.cfg.CircuitBreaker
		cfg.Name = host
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = func(name string, from, to resilience.State) {
				r.log.Warn("circuit breaker state changed", logger.Fields(
					"host", name,
					"from", from.String(),
					"to", to.String(),
				))
			}
		}
		cb = resilience.NewCircuitBreaker(cfg)
		r.breakers[host] = cb
	}
	return cb
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func outcomeOf(resp *rest.Response) string {
	switch {
	case resp == nil:
		return "stopped"
	case resp.Cancelled():
		return "cancelled"
	case resp.Err != nil:
		return string(errors.CodeOf(resp.Err))
	}
	return "ok"
}
