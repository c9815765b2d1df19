package serializer

import (
	"fmt"
	"mime"
	"strings"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/mapper"
	"github.com/kbukum/restkit/rest"
)

// ObjectFunc replaces the default data decoding. resp has its RawBody,
// headers and status populated.
type ObjectFunc func(resp *rest.Response) (any, error)

// ErrorFunc replaces the default classification of non-2xx responses.
// Returning nil falls back to the default.
type ErrorFunc func(resp *rest.Response) error

// Serializer builds responses from raw exchanges.
type Serializer struct {
	registry *mapper.Registry
	objectFn ObjectFunc
	errorFn  ErrorFunc
	log      *logger.Logger
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithObjectFunc overrides how successful bodies are decoded.
func WithObjectFunc(fn ObjectFunc) Option {
	return func(s *Serializer) { s.objectFn = fn }
}

// WithErrorFunc overrides how failed responses are classified.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(s *Serializer) { s.errorFn = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Serializer) { s.log = l }
}

// New creates a serializer mapping through registry. registry may be nil, in
// which case object mapping requests fail with INVALID_PAYLOAD.
func New(registry *mapper.Registry, opts ...Option) *Serializer {
	s := &Serializer{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrGlobal(s.log).WithComponent("serializer")
	return s
}

// Serialize builds the response for req. It never returns nil.
func (s *Serializer) Serialize(req *rest.Request, status int, headers map[string]string, body []byte) *rest.Response {
	resp := rest.NewResponse(req, status, headers, body, nil)

	if status < 200 || status >= 300 {
		resp.Err = s.classify(resp)
		if data, err := s.parse(resp); err == nil {
			resp.Data = data
		}
		return resp
	}

	if s.objectFn != nil {
		data, err := s.objectFn(resp)
		if err != nil {
			resp.Err = asPayloadError(err)
			return resp
		}
		resp.Data = data
		return resp
	}

	data, err := s.parse(resp)
	if err != nil {
		resp.Err = errors.InvalidServerResponse(err)
		return resp
	}

	if req != nil && req.ObjectMapping() && req.TargetType() != "" && data != nil {
		mapped, err := s.mapObject(data, req.TargetType())
		if err != nil {
			s.log.Warn("object mapping failed", logger.MergeWithError(logger.Fields(
				logger.FieldRequestID, req.ID(),
				"target", req.TargetType(),
			), err))
			resp.Err = err
			return resp
		}
		data = mapped
	}
	resp.Data = data
	return resp
}

func (s *Serializer) classify(resp *rest.Response) error {
	if s.errorFn != nil {
		if err := s.errorFn(resp); err != nil {
			return err
		}
	}
	return errors.FromStatus(resp.StatusCode, resp.RawBody)
}

// parse decodes JSON bodies and returns other bodies as text or bytes.
func (s *Serializer) parse(resp *rest.Response) (any, error) {
	if len(resp.RawBody) == 0 {
		return nil, nil
	}
	switch ct := resp.ContentType(); {
	case isJSON(ct), ct == "" && looksLikeJSON(resp.RawBody):
		return rest.ParseJSON(resp.RawBody)
	case strings.HasPrefix(ct, "text/"):
		return string(resp.RawBody), nil
	default:
		return resp.RawBody, nil
	}
}

func (s *Serializer) mapObject(data any, uri string) (any, error) {
	if s.registry == nil {
		return nil, errors.InvalidPayload(fmt.Sprintf("no type registry to map %q", uri))
	}
	switch data.(type) {
	case []any:
		return s.registry.DecodeList(data, uri)
	default:
		return s.registry.Decode(data, uri)
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func asPayloadError(err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.InvalidPayload(err.Error()).WithCause(err)
}
