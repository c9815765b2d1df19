package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/controller"
	"github.com/kbukum/restkit/eventually"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/mapper"
	"github.com/kbukum/restkit/module"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/runner"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/session"
	"github.com/kbukum/restkit/transport"

	// Backends selected by configuration.
	_ "github.com/kbukum/restkit/cache/file"
	_ "github.com/kbukum/restkit/cache/redis"
	_ "github.com/kbukum/restkit/eventually/badgerstore"
)

// Client is the entry point for applications: it owns every component built
// from a Config and exposes the request operations.
type Client struct {
	cfg        Config
	pctx       *Context
	obs        *observability.Provider
	transport  transport.Transport
	runner     *runner.Runner
	cache      cache.Cache
	responses  *cache.Responses
	queue      *eventually.Queue
	session    session.Store
	extractor  *session.Extractor
	controller *controller.Controller
	modules    *module.Registry
	log        *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger    *logger.Logger
	transport transport.Transport
	registry  *mapper.Registry
	prober    []reachability.ProberOption
}

// Option configures a Client.
type Option func(*options)

// WithLogger uses l instead of a logger built from the configuration.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport replaces the HTTP transport.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) { o.transport = tr }
}

// WithRegistry maps response payloads through registry.
func WithRegistry(r *mapper.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithProberOptions configures the reachability prober.
func WithProberOptions(opts ...reachability.ProberOption) Option {
	return func(o *options) { o.prober = append(o.prober, opts...) }
}

// New builds a stopped client from cfg. Call Start to begin draining the
// durable queue and probing reachability.
func New(ctx context.Context, cfg Config, opts ...Option) (_ *Client, err error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(&cfg.Logging, cfg.Name)
	}
	c := &Client{cfg: cfg, log: log.WithComponent("client")}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	c.obs, err = observability.Init(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	c.pctx = NewContext(log, o.registry, c.obs.Metrics)
	c.modules = module.NewRegistry(log)

	c.session, err = session.Open(cfg.Session, c.pctx.Locks, log)
	if err != nil {
		return nil, err
	}
	c.extractor = session.NewExtractor(c.session, cfg.Session.TokenKey, cfg.Session.Identifier, log)

	c.transport = o.transport
	if c.transport == nil {
		c.transport, err = transport.NewHTTP(cfg.API,
			transport.WithTokenSource(c.session),
			transport.WithLogger(log))
		if err != nil {
			return nil, err
		}
	}

	ser := serializer.New(c.pctx.Mapper, serializer.WithLogger(log))
	c.runner = runner.New(cfg.Runner, c.transport, ser,
		runner.WithMonitor(c.pctx.Reachability),
		runner.WithLogger(log),
		runner.WithMetrics(c.pctx.Metrics))

	c.cache, err = cache.New(cfg.Cache, cache.Deps{Logger: log, Locks: c.pctx.Locks})
	if err != nil {
		return nil, err
	}
	c.responses = cache.NewResponses(c.cache, ser, log)

	store, err := eventually.OpenStore(cfg.Eventually, eventually.StoreDeps{Logger: log, Locks: c.pctx.Locks})
	if err != nil {
		return nil, err
	}
	c.queue = eventually.New(cfg.Eventually, store, c.runner,
		eventually.WithMonitor(c.pctx.Reachability),
		eventually.WithLogger(log),
		eventually.WithMetrics(c.pctx.Metrics),
		eventually.WithTaskQueue(c.pctx.Tasks))

	c.controller = controller.New(c.runner,
		controller.WithCache(c.responses),
		controller.WithQueue(c.queue),
		controller.WithLogger(log),
		controller.WithMetrics(c.pctx.Metrics))

	if err := c.registerModules(cfg, o.prober); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) registerModules(cfg Config, proberOpts []reachability.ProberOption) error {
	if m, ok := c.cache.(module.Module); ok {
		if err := c.modules.Register(m); err != nil {
			return err
		}
	}
	if cfg.Reachability.Enabled {
		prober := reachability.NewProber(cfg.Reachability, c.pctx.Reachability, c.log, proberOpts...)
		if err := c.modules.Register(prober); err != nil {
			return err
		}
	}
	return c.modules.Register(c.queue)
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Context returns the shared process context.
func (c *Client) Context() *Context { return c.pctx }

// Queue returns the durable queue.
func (c *Client) Queue() *eventually.Queue { return c.queue }

// Cache returns the response cache.
func (c *Client) Cache() *cache.Responses { return c.responses }

// Session returns the session store.
func (c *Client) Session() session.Store { return c.session }

// Runner returns the request runner.
func (c *Client) Runner() *runner.Runner { return c.runner }

// Request builds a request for endpoint on the configured base URL.
func (c *Client) Request(method rest.Method, endpoint string, opts ...rest.Option) (*rest.Request, error) {
	return rest.New(method, c.cfg.BaseURL, endpoint, opts...)
}

// Send executes req under its cache policy and settles with its last
// response.
func (c *Client) Send(ctx context.Context, req *rest.Request) *async.Future[*rest.Response] {
	return c.controller.Run(ctx, req)
}

// SendSync executes req and waits for its last response. With the
// StopExecution timeout policy it only returns once ctx is done.
func (c *Client) SendSync(ctx context.Context, req *rest.Request) (*rest.Response, error) {
	return c.Send(ctx, req).Await(ctx)
}

// Stream executes req and emits each of its responses.
func (c *Client) Stream(ctx context.Context, req *rest.Request) <-chan *rest.Response {
	return c.controller.Stream(ctx, req)
}

// SendEventually queues req durably; it is attempted whenever the network
// allows until it succeeds or its attempts are exhausted.
func (c *Client) SendEventually(ctx context.Context, req *rest.Request) *async.Future[*rest.Response] {
	return c.controller.RunEventually(ctx, req)
}

// SendBatch executes reqs concurrently and returns their responses in input
// order.
func (c *Client) SendBatch(ctx context.Context, reqs []*rest.Request) ([]*rest.Response, error) {
	futures := make([]*async.Future[*rest.Response], len(reqs))
	for i, req := range reqs {
		futures[i] = c.Send(ctx, req)
	}
	return async.All(ctx, futures)
}

// CaptureSession stores the session token carried by a login response.
func (c *Client) CaptureSession(ctx context.Context, resp *rest.Response) error {
	_, err := c.extractor.Capture(ctx, resp)
	return err
}

// Logout drops every queued request, the current session and the response
// cache.
func (c *Client) Logout(ctx context.Context) error {
	errs := []error{
		c.queue.RemoveAllRequests(ctx),
		c.session.ResetCurrentSession(ctx),
		c.responses.RemoveAll(ctx),
	}
	if err := stderrors.Join(errs...); err != nil {
		c.log.Error("logout incomplete", logger.ErrorFields("logout", err))
		return err
	}
	c.log.Info("logged out")
	return nil
}

// Start starts the background modules: the redis cache when configured, the
// reachability prober when enabled and the durable queue.
func (c *Client) Start(ctx context.Context) error {
	return c.modules.StartAll(ctx)
}

// Stop stops the background modules in reverse order.
func (c *Client) Stop(ctx context.Context) error {
	return c.modules.StopAll(ctx)
}

// Health reports the health of every background module.
func (c *Client) Health(ctx context.Context) []module.Health {
	return c.modules.HealthAll(ctx)
}

// Close stops the client and releases every resource it owns.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.modules != nil {
			errs = append(errs, c.modules.StopAll(ctx))
		}
		if c.queue != nil {
			errs = append(errs, c.queue.Close(ctx))
		}
		if c.runner != nil {
			c.runner.Close()
		}
		if c.cache != nil {
			errs = append(errs, c.cache.Close())
		}
		if c.session != nil {
			errs = append(errs, c.session.Close())
		}
		if c.pctx != nil {
			c.pctx.Close()
		}
		if c.obs != nil {
			errs = append(errs, c.obs.Shutdown(ctx))
		}
		c.closeErr = stderrors.Join(errs...)
	})
	return c.closeErr
}
