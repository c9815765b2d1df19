package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/serializer"
)

type storedResponse struct {
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     []byte            `json:"body,omitempty"`
	StoredAt time.Time         `json:"stored_at"`
}

// Responses stores network responses in a Cache under their request's cache
// key and rebuilds them through the serializer on load.
type Responses struct {
	cache      Cache
	serializer *serializer.Serializer
	log        *logger.Logger
	now        func() time.Time
}

// NewResponses wraps c. A nil serializer uses one without a type registry.
func NewResponses(c Cache, s *serializer.Serializer, log *logger.Logger) *Responses {
	log = logger.OrGlobal(log).WithComponent("cache")
	if s == nil {
		s = serializer.New(nil, serializer.WithLogger(log))
	}
	return &Responses{cache: c, serializer: s, log: log, now: time.Now}
}

// Cache returns the underlying store.
func (r *Responses) Cache() Cache { return r.cache }

// Load returns the cached response for req, honouring req.CacheMaxAge. Read
// and decode failures are logged and reported as a miss.
func (r *Responses) Load(ctx context.Context, req *rest.Request) (*rest.Response, bool) {
	ctx, span := observability.StartSpan(ctx, observability.SpanCacheRead, trace.WithAttributes(
		attribute.String(observability.AttrRequestID, req.ID()),
		attribute.String(observability.AttrCachePolicy, req.CachePolicy().String()),
	))
	resp, err := r.load(ctx, req)
	span.SetAttributes(attribute.Bool(observability.AttrCacheHit, resp != nil))
	observability.EndSpan(span, err)

	if err != nil {
		r.log.Warn("cache read failed", logger.MergeWithError(logger.Fields(
			logger.FieldRequestID, req.ID(),
			logger.FieldKey, req.CacheKey(),
		), err))
		return nil, false
	}
	return resp, resp != nil
}

func (r *Responses) load(ctx context.Context, req *rest.Request) (*rest.Response, error) {
	raw, ok, err := r.cache.Get(ctx, req.CacheKey(), req.CacheMaxAge())
	if err != nil || !ok {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	resp := r.serializer.Serialize(req, stored.Status, stored.Headers, stored.Body)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.FromCache(), nil
}

// Store writes resp under its request's cache key. Failed and cached
// responses are not stored.
func (r *Responses) Store(ctx context.Context, resp *rest.Response) error {
	if resp == nil || resp.Err != nil || resp.Request == nil || resp.Source == rest.SourceCache {
		return nil
	}
	raw, err := json.Marshal(storedResponse{
		Status:   resp.StatusCode,
		Headers:  resp.Headers,
		Body:     resp.RawBody,
		StoredAt: r.now(),
	})
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, resp.Request.CacheKey(), raw)
}

// Remove deletes the entry of req.
func (r *Responses) Remove(ctx context.Context, req *rest.Request) error {
	return r.cache.Remove(ctx, req.CacheKey())
}

// RemoveAll clears the cache.
func (r *Responses) RemoveAll(ctx context.Context) error {
	return r.cache.RemoveAll(ctx)
}
