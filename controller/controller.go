package controller

import (
	"context"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/runner"
)

// Runner executes a request against the network. *runner.Runner satisfies
// it.
type Runner interface {
	Run(ctx context.Context, req *rest.Request, opts runner.Options) *rest.Response
}

// Queue runs requests eventually. *eventually.Queue satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, req *rest.Request) *async.Future[*rest.Response]
}

// Controller executes requests under their cache policy.
type Controller struct {
	runner  Runner
	cache   *cache.Responses
	queue   Queue
	runOpts runner.Options
	metrics *observability.Metrics
	log     *logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache enables cache reads and write-through.
func WithCache(r *cache.Responses) Option {
	return func(c *Controller) { c.cache = r }
}

// WithQueue enables RunEventually.
func WithQueue(q Queue) Option {
	return func(c *Controller) { c.queue = q }
}

// WithRunOptions sets the options passed to the runner.
func WithRunOptions(o runner.Options) Option {
	return func(c *Controller) { c.runOpts = o }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records cache lookups.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller over r.
func New(r Runner, opts ...Option) *Controller {
	c := &Controller{runner: r}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrGlobal(c.log).WithComponent("controller")
	return c
}

// Cached reports whether the controller has a cache.
func (c *Controller) Cached() bool { return c.cache != nil }

// Stream executes req and emits its responses in order: one, or two for
// CacheThenNetwork with a cache hit. The channel is closed afterwards. No
// response is emitted for a network call dropped by the StopExecution
// timeout policy.
func (c *Controller) Stream(ctx context.Context, req *rest.Request) <-chan *rest.Response {
	out := make(chan *rest.Response, 2)
	go func() {
		defer close(out)
		c.execute(ctx, req, func(resp *rest.Response) { out <- resp })
	}()
	return out
}

// Run executes req and settles with its last response. The future never
// carries an error; failures are reported in the response.
func (c *Controller) Run(ctx context.Context, req *rest.Request) *async.Future[*rest.Response] {
	f, resolve := async.NewPromise[*rest.Response]()
	go func() {
		var last *rest.Response
		for resp := range c.Stream(ctx, req) {
			last = resp
		}
		if last != nil {
			resolve(last, nil)
		}
	}()
	return f
}

// RunEventually hands req to the durable queue. A successful response is
// written through to the cache like any network response.
func (c *Controller) RunEventually(ctx context.Context, req *rest.Request) *async.Future[*rest.Response] {
	if c.queue == nil {
		return async.Resolved(rest.NewErrorResponse(req,
			errors.New(errors.ErrCodeLocalInternal, "No durable queue is configured.")), nil)
	}
	return async.Then(c.queue.Enqueue(ctx, req), func(resp *rest.Response, err error) (*rest.Response, error) {
		if err != nil {
			return rest.NewErrorResponse(req, errors.LocalInternal(err)), nil
		}
		c.writeThrough(context.WithoutCancel(ctx), req, resp)
		return resp, nil
	})
}

func (c *Controller) execute(ctx context.Context, req *rest.Request, emit func(*rest.Response)) {
	if ctx.Err() != nil {
		emit(rest.NewCancelledResponse(req))
		return
	}
	policy := req.CachePolicy()
	c.log.Debug("executing request", logger.Fields(
		logger.FieldRequestID, req.ID(),
		logger.FieldMethod, string(req.Method()),
		logger.FieldCachePolicy, policy.String(),
	))

	switch policy {
	case rest.IgnoreCache, rest.NetworkOnly:
		c.emitNetwork(ctx, req, emit)

	case rest.CacheOnly:
		if cached, ok := c.lookup(ctx, req); ok {
			emit(cached)
			return
		}
		emit(rest.NewErrorResponse(req, errors.ObjectNotFound("cache entry", req.CacheKey())))

	case rest.CacheThenNetwork:
		if cached, ok := c.lookup(ctx, req); ok {
			emit(cached)
		}
		c.emitNetwork(ctx, req, emit)

	case rest.CacheElseNetwork:
		if cached, ok := c.lookup(ctx, req); ok {
			emit(cached)
			return
		}
		c.emitNetwork(ctx, req, emit)

	case rest.NetworkElseCache:
		resp := c.network(ctx, req)
		if resp == nil {
			return
		}
		if resp.Err != nil && !resp.Cancelled() {
			if cached, ok := c.lookup(ctx, req); ok {
				c.log.Debug("network failed, answering from cache", logger.MergeWithError(
					logger.Fields(logger.FieldRequestID, req.ID()), resp.Err))
				emit(cached)
				return
			}
		}
		emit(resp)

	default:
		emit(rest.NewErrorResponse(req, errors.New(errors.ErrCodeInvalidQuery, "Unknown cache policy.")))
	}
}

func (c *Controller) emitNetwork(ctx context.Context, req *rest.Request, emit func(*rest.Response)) {
	if resp := c.network(ctx, req); resp != nil {
		emit(resp)
	}
}

// network runs req and writes a successful response through to the cache.
func (c *Controller) network(ctx context.Context, req *rest.Request) *rest.Response {
	resp := c.runner.Run(ctx, req, c.runOpts)
	c.writeThrough(ctx, req, resp)
	return resp
}

func (c *Controller) writeThrough(ctx context.Context, req *rest.Request, resp *rest.Response) {
	if c.cache == nil || resp == nil || resp.Err != nil {
		return
	}
	if !req.Method().Cacheable() || req.CachePolicy() == rest.IgnoreCache {
		return
	}
	if err := c.cache.Store(context.WithoutCancel(ctx), resp); err != nil {
		c.log.Warn("cache write failed", logger.MergeWithError(logger.Fields(
			logger.FieldRequestID, req.ID(),
			logger.FieldKey, req.CacheKey(),
		), err))
	}
}

func (c *Controller) lookup(ctx context.Context, req *rest.Request) (*rest.Response, bool) {
	if c.cache == nil {
		c.metrics.RecordCacheLookup(ctx, req.CachePolicy().String(), false)
		return nil, false
	}
	resp, ok := c.cache.Load(ctx, req)
	c.metrics.RecordCacheLookup(ctx, req.CachePolicy().String(), ok)
	return resp, ok
}
