package eventually

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/runner"
	"github.com/kbukum/restkit/taskqueue"
)

// Runner performs one attempt of a queued request. *runner.Runner satisfies
// it.
type Runner interface {
	Run(ctx context.Context, req *rest.Request, opts runner.Options) *rest.Response
}

// SettleFunc observes entries reaching a terminal state.
type SettleFunc func(id string, resp *rest.Response)

// Attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
)

var errEntryGone = stderrors.New("entry no longer queued")

type waiter struct {
	req      *rest.Request
	resolves []async.Resolve[*rest.Response]
}

// Queue is the durable retry queue.
type Queue struct {
	cfg     Config
	store   Store
	runner  Runner
	monitor *reachability.Monitor
	tasks   *taskqueue.Queue
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
	wake    chan struct{}

	mu            sync.Mutex
	waiters       map[string]*waiter
	hooks         []SettleFunc
	lastSeq       uint64
	started       bool
	paused        bool
	cancel        context.CancelFunc
	done          chan struct{}
	unsubscribe   func()
	attemptCancel context.CancelFunc
}

var _ module.Module = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithMonitor pauses attempts while the network is not reachable and drains
// the queue when it comes back.
func WithMonitor(m *reachability.Monitor) Option {
	return func(q *Queue) { q.monitor = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithMetrics records queue metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithTaskQueue shares a mutation queue with other components.
func WithTaskQueue(tq *taskqueue.Queue) Option {
	return func(q *Queue) { q.tasks = tq }
}

// New creates a stopped queue over store. Attempts are executed by r.
func New(cfg Config, store Store, r Runner, opts ...Option) *Queue {
	cfg.ApplyDefaults()
	q := &Queue{
		cfg:     cfg,
		store:   store,
		runner:  r,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		waiters: make(map[string]*waiter),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.tasks == nil {
		q.tasks = taskqueue.New()
	}
	q.log = logger.OrGlobal(q.log).WithComponent("eventually")
	return q
}

// Name implements module.Module.
func (q *Queue) Name() string { return "eventually" }

// OnSettled registers fn to be called whenever an entry settles, including
// entries enqueued by an earlier process.
func (q *Queue) OnSettled(fn SettleFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, fn)
}

// Enqueue persists req and returns a future settled when the entry reaches a
// terminal state. Enqueueing an identifier that is already queued attaches to
// the existing entry.
func (q *Queue) Enqueue(ctx context.Context, req *rest.Request) *async.Future[*rest.Response] {
	f, resolve := async.NewPromise[*rest.Response]()
	q.attach(req.ID(), req, resolve)

	saved := q.tasks.Do(ctx, func(ctx context.Context) error {
		return q.persist(context.WithoutCancel(ctx), req)
	})
	go func() {
		if _, err := saved.Await(context.Background()); err != nil {
			q.log.Error("failed to persist queued request", logger.MergeWithError(
				logger.RequestFields(req.ID(), string(req.Method()), req.URL()), err))
			resp := rest.NewErrorResponse(req, errors.LocalInternal(err))
			if errors.IsCancelled(err) {
				resp = rest.NewCancelledResponse(req)
			}
			q.resolve(req.ID(), resp)
			return
		}
		q.Wakeup()
	}()
	return f
}

func (q *Queue) persist(ctx context.Context, req *rest.Request) error {
	if _, ok, err := q.store.Load(ctx, req.ID()); err != nil {
		return err
	} else if ok {
		return nil
	}
	e, err := NewEntry(req, q.nextSeq(), q.now())
	if err != nil {
		return err
	}
	if err := q.store.Save(ctx, e); err != nil {
		return err
	}
	q.metrics.RecordQueuePending(ctx, 1)
	q.log.Debug("request queued", logger.Fields(
		logger.FieldRequestID, e.ID,
		"seq", e.Seq,
	))
	return nil
}

func (q *Queue) nextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastSeq = max(q.lastSeq+1, uint64(q.now().UnixNano()))
	return q.lastSeq
}

// Await returns a future for the queued entry id, typically one enqueued by
// an earlier process. If no such entry exists the future settles with
// OBJECT_NOT_FOUND.
func (q *Queue) Await(id string) *async.Future[*rest.Response] {
	f, resolve := async.NewPromise[*rest.Response]()
	q.attach(id, nil, resolve)

	found := taskqueue.Enqueue(context.Background(), q.tasks, func(ctx context.Context, _ error) (*Entry, error) {
		e, ok, err := q.store.Load(ctx, id)
		if !ok {
			return nil, err
		}
		return e, err
	})
	go func() {
		e, err := found.Await(context.Background())
		switch {
		case err != nil:
			q.resolve(id, rest.NewErrorResponse(nil, errors.LocalInternal(err)))
		case e == nil:
			q.resolve(id, rest.NewErrorResponse(nil, errors.ObjectNotFound("queued request", id)))
		default:
			if req, err := e.Request(); err == nil {
				q.mu.Lock()
				if w, ok := q.waiters[id]; ok && w.req == nil {
					w.req = req
				}
				q.mu.Unlock()
			}
		}
	}()
	return f
}

func (q *Queue) attach(id string, req *rest.Request, resolve async.Resolve[*rest.Response]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.waiters[id]
	if !ok {
		w = &waiter{}
		q.waiters[id] = w
	}
	if w.req == nil {
		w.req = req
	}
	w.resolves = append(w.resolves, resolve)
}

// resolve settles the futures waiting on id.
func (q *Queue) resolve(id string, resp *rest.Response) {
	q.mu.Lock()
	w := q.waiters[id]
	delete(q.waiters, id)
	q.mu.Unlock()
	if w == nil {
		return
	}
	for _, r := range w.resolves {
		r(resp, nil)
	}
}

// settle resolves the futures of id and runs the OnSettled hooks.
func (q *Queue) settle(id string, resp *rest.Response) {
	q.resolve(id, resp)
	q.mu.Lock()
	hooks := slices.Clone(q.hooks)
	q.mu.Unlock()
	for _, h := range hooks {
		h(id, resp)
	}
}

// Start launches the drain loop. It is idempotent and also resumes a paused
// queue.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	if q.started {
		q.Wakeup()
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.done = make(chan struct{})
	q.started = true
	if q.monitor != nil {
		q.unsubscribe = q.monitor.Subscribe(func(s reachability.Status) {
			if s != reachability.StatusNotReachable {
				q.Wakeup()
			}
		})
	}
	go q.loop(loopCtx, q.done)
	q.Wakeup()
	q.log.Info("queue started")
	return nil
}

// Resume restarts attempts after Pause.
func (q *Queue) Resume() {
	_ = q.Start(context.Background())
}

// Pause stops issuing new attempts. An attempt already running completes and
// no entry is lost.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		q.paused = true
		q.log.Info("queue paused")
	}
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Stop ends the drain loop. A running attempt is abandoned without consuming
// an attempt; pending futures stay unsettled until the queue is started again.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	cancel, done, unsubscribe := q.cancel, q.done, q.unsubscribe
	q.started = false
	q.unsubscribe = nil
	q.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.log.Info("queue stopped")
	return nil
}

// Close stops the queue and closes its store.
func (q *Queue) Close(ctx context.Context) error {
	if err := q.Stop(ctx); err != nil {
		return err
	}
	return q.store.Close()
}

// Health implements module.Module.
func (q *Queue) Health(ctx context.Context) module.Health {
	h := module.Health{Name: q.Name(), Status: module.StatusHealthy}
	q.mu.Lock()
	started, paused := q.started, q.paused
	q.mu.Unlock()
	switch {
	case !started:
		h.Status, h.Message = module.StatusUnhealthy, "not started"
	case paused:
		h.Status, h.Message = module.StatusDegraded, "paused"
	}
	if _, err := q.store.List(ctx); err != nil {
		h.Status, h.Message = module.StatusUnhealthy, err.Error()
	}
	return h
}

// Wakeup asks the drain loop for an immediate pass.
func (q *Queue) Wakeup() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// RemoveAllRequests deletes every entry. Their futures settle with a
// cancelled response and a running attempt is cancelled.
func (q *Queue) RemoveAllRequests(ctx context.Context) error {
	cleared := taskqueue.Enqueue(ctx, q.tasks, func(ctx context.Context, _ error) ([]*Entry, error) {
		entries, err := q.store.List(ctx)
		if err != nil {
			return nil, err
		}
		if err := q.store.Clear(ctx); err != nil {
			return nil, err
		}
		return entries, nil
	})
	entries, err := cleared.Await(ctx)
	if err != nil {
		return err
	}
	q.metrics.RecordQueuePending(ctx, -int64(len(entries)))

	q.mu.Lock()
	if q.attemptCancel != nil {
		q.attemptCancel()
	}
	q.mu.Unlock()

	for _, e := range entries {
		q.mu.Lock()
		var req *rest.Request
		if w, ok := q.waiters[e.ID]; ok {
			req = w.req
		}
		q.mu.Unlock()
		if req == nil {
			req, _ = e.Request()
		}
		q.settle(e.ID, rest.NewCancelledResponse(req))
	}
	q.log.Info("queue cleared", logger.Fields("removed", len(entries)))
	return nil
}

// PendingCount returns the number of queued entries.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	entries, err := q.store.List(ctx)
	return len(entries), err
}

// PendingIDs returns the identifiers of queued entries in FIFO order.
func (q *Queue) PendingIDs(ctx context.Context) ([]string, error) {
	entries, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

// Entries returns the queued entries in FIFO order.
func (q *Queue) Entries(ctx context.Context) ([]*Entry, error) {
	return q.store.List(ctx)
}

func (q *Queue) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(q.cfg.PollInterval)
	defer timer.Stop()

	for {
		wait := q.cfg.PollInterval
		if next := q.drain(ctx); !next.IsZero() {
			wait = min(wait, max(next.Sub(q.now()), 0))
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}

func (q *Queue) active() bool {
	q.mu.Lock()
	paused := q.paused
	q.mu.Unlock()
	if paused {
		return false
	}
	return q.monitor == nil || q.monitor.Status() != reachability.StatusNotReachable
}

// drain attempts every due entry once, in FIFO order, and returns the time
// the next entry becomes due.
func (q *Queue) drain(ctx context.Context) time.Time {
	if !q.active() {
		return time.Time{}
	}
	entries, err := q.store.List(ctx)
	if err != nil {
		q.log.Error("failed to list queued requests", logger.ErrorFields("list", err))
		return time.Time{}
	}

	var next time.Time
	later := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	for _, e := range entries {
		if ctx.Err() != nil || !q.active() {
			return time.Time{}
		}
		if due := e.DueAt(q.cfg.RetryInterval); q.now().Before(due) {
			later(due)
			continue
		}
		later(q.attempt(ctx, e))
	}
	return next
}

// attempt runs one attempt of e. It returns the time of the next attempt when
// the entry stays queued.
func (q *Queue) attempt(ctx context.Context, e *Entry) time.Time {
	req, err := e.Request()
	if err != nil {
		q.log.Error("dropping unreadable queued request", logger.MergeWithError(logger.Fields(logger.FieldRequestID, e.ID), err))
		q.finish(ctx, e, rest.NewErrorResponse(nil, err), OutcomeFailed)
		return time.Time{}
	}

	prevAttemptAt := e.LastAttemptAt
	e.Attempts++
	e.LastAttemptAt = q.now()
	if err := q.mutate(ctx, func(ctx context.Context) error { return q.saveIfQueued(ctx, e) }); err != nil {
		if !stderrors.Is(err, errEntryGone) {
			q.log.Error("failed to record attempt", logger.MergeWithError(logger.Fields(logger.FieldRequestID, e.ID), err))
		}
		return time.Time{}
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanQueueTry, trace.WithAttributes(
		attribute.String(observability.AttrRequestID, e.ID),
		attribute.Int(observability.AttrAttempt, e.Attempts),
	))
	attemptCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.attemptCancel = cancel
	q.mu.Unlock()

	resp := q.runner.Run(attemptCtx, req, runner.Options{})

	q.mu.Lock()
	q.attemptCancel = nil
	q.mu.Unlock()
	cancel()

	if resp == nil {
		resp = rest.NewErrorResponse(req, errors.Timeout(req.URL()))
	}
	var outcome string
	defer func() {
		span.SetAttributes(attribute.String(observability.AttrOutcome, outcome))
		observability.EndSpan(span, nil)
	}()

	fields := logger.Fields(
		logger.FieldRequestID, e.ID,
		logger.FieldAttempt, e.Attempts,
	)
	switch {
	case resp.Cancelled():
		outcome = "cancelled"
		if ctx.Err() != nil {
			// stopping: give the attempt back
			e.Attempts--
			e.LastAttemptAt = prevAttemptAt
			_ = q.mutate(ctx, func(ctx context.Context) error { return q.saveIfQueued(ctx, e) })
		}
		return time.Time{}
	case resp.Err == nil:
		outcome = OutcomeSucceeded
	case q.retryable(resp.Err) && e.Attempts < q.cfg.MaxAttempts:
		outcome = OutcomeRetry
		e.LastError = resp.Err.Error()
		if err := q.mutate(ctx, func(ctx context.Context) error { return q.saveIfQueued(ctx, e) }); err != nil {
			return time.Time{}
		}
		q.metrics.RecordQueueAttempt(ctx, outcome)
		q.log.Info("queued request failed, will retry", logger.MergeWithError(fields, resp.Err))
		return e.DueAt(q.cfg.RetryInterval)
	case q.retryable(resp.Err):
		outcome = OutcomeExhausted
	default:
		outcome = OutcomeFailed
	}

	q.finish(ctx, e, resp, outcome)
	return time.Time{}
}

// finish removes e and settles it if it was still queued.
func (q *Queue) finish(ctx context.Context, e *Entry, resp *rest.Response, outcome string) {
	var removed bool
	err := q.mutate(ctx, func(ctx context.Context) error {
		_, ok, err := q.store.Load(ctx, e.ID)
		if err != nil || !ok {
			return err
		}
		removed = true
		return q.store.Delete(ctx, e.ID)
	})
	if err != nil {
		q.log.Error("failed to remove settled request", logger.MergeWithError(logger.Fields(logger.FieldRequestID, e.ID), err))
		return
	}
	if !removed {
		return
	}

	q.metrics.RecordQueuePending(ctx, -1)
	q.metrics.RecordQueueAttempt(ctx, outcome)
	fields := logger.Fields(
		logger.FieldRequestID, e.ID,
		logger.FieldAttempt, e.Attempts,
		"outcome", outcome,
	)
	if resp.Err != nil {
		q.log.Warn("queued request failed", logger.MergeWithError(fields, resp.Err))
	} else {
		q.log.Debug("queued request succeeded", fields)
	}
	q.settle(e.ID, resp)
}

// saveIfQueued writes e unless it was removed in the meantime.
func (q *Queue) saveIfQueued(ctx context.Context, e *Entry) error {
	if _, ok, err := q.store.Load(ctx, e.ID); err != nil {
		return err
	} else if !ok {
		return errEntryGone
	}
	return q.store.Save(ctx, e)
}

// mutate runs fn on the mutation queue and waits for it. Mutations are not
// abandoned when ctx is cancelled.
func (q *Queue) mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := q.tasks.Do(context.WithoutCancel(ctx), fn).Await(context.Background())
	return err
}

func (q *Queue) retryable(err error) bool {
	if errors.IsCancelled(err) {
		return false
	}
	return errors.IsRetryable(err) || errors.Is(err, errors.ErrCodeNoInternetConnection)
}
