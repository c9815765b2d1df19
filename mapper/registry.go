package mapper

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/validation"
)

// Type describes how T is mapped.
type Type[T any] struct {
	// URI identifies the type on the wire and in requests.
	URI string
	// New allocates an empty instance. Defaults to new(T).
	New func() *T
	// Fields lists the mapped properties.
	Fields []Field[T]
	// DecodeKey and EncodeKey translate a property name to a wire key for
	// fields without an explicit key. They default to the registry naming.
	DecodeKey func(property string) string
	EncodeKey func(property string) string
	// Validate runs struct tag validation on every decoded instance.
	Validate bool
}

// TypeInfo describes a registered type.
type TypeInfo struct {
	URI    string
	GoType reflect.Type
}

type entry interface {
	info() TypeInfo
	decode(r *Registry, payload map[string]any) (any, error)
	encode(r *Registry, v any) (map[string]any, error)
}

// Registry holds the registered types. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	byType  map[reflect.Type]string
	order   []string
	naming  func(string) string
	log     *logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithNaming sets the default property to wire key translation.
func WithNaming(fn func(string) string) Option {
	return func(r *Registry) { r.naming = fn }
}

// WithLogger sets the registry logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry. Wire keys default to property names.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		byType:  make(map[reflect.Type]string),
		naming:  func(p string) string { return p },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrGlobal(r.log).WithComponent("mapper")
	return r
}

// MakeURI builds a type URI of the form scheme.host.version.class.
func MakeURI(scheme, host, version, class string) string {
	return strings.Join([]string{scheme, host, version, class}, ".")
}

// Register adds t to the registry. It returns true when the type is newly
// registered or already registered under the same URI, and false when t is
// malformed or its URI or Go type is claimed by another registration.
func Register[T any](r *Registry, t Type[T]) bool {
	goType := reflect.TypeFor[*T]()
	if err := t.check(); err != nil {
		r.log.Warn("type registration rejected", logger.Fields("uri", t.URI, logger.FieldError, err.Error()))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[t.URI]; ok {
		return existing.info().GoType == goType
	}
	if uri, ok := r.byType[goType]; ok {
		r.log.Warn("type already registered under another uri", logger.Fields("uri", t.URI, "registered_uri", uri))
		return false
	}

	r.entries[t.URI] = &typed[T]{t: t, goType: goType}
	r.byType[goType] = t.URI
	r.order = append(r.order, t.URI)
	r.log.Debug("type registered", logger.Fields("uri", t.URI, "fields", len(t.Fields)))
	return true
}

func (t Type[T]) check() error {
	if t.URI == "" {
		return fmt.Errorf("empty type uri")
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		switch {
		case f.property == "":
			return fmt.Errorf("field with empty property name")
		case seen[f.property]:
			return fmt.Errorf("duplicate property %q", f.property)
		case f.get == nil || f.set == nil:
			return fmt.Errorf("property %q has no accessor", f.property)
		case (f.kind == KindObject || f.kind == KindObjectList) && f.typeURI == "":
			return fmt.Errorf("property %q has no nested type uri", f.property)
		}
		seen[f.property] = true
	}
	return nil
}

// IsRegistered reports whether uri is registered.
func (r *Registry) IsRegistered(uri string) bool {
	_, ok := r.lookup(uri)
	return ok
}

// AllRegisteredTypes returns the registered URIs in registration order.
func (r *Registry) AllRegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TypeForURI returns the type registered under uri.
func (r *Registry) TypeForURI(uri string) (TypeInfo, bool) {
	e, ok := r.lookup(uri)
	if !ok {
		return TypeInfo{}, false
	}
	return e.info(), true
}

// URIOf returns the URI of the registered type of v.
func (r *Registry) URIOf(v any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.byType[reflect.TypeOf(v)]
	return uri, ok
}

func (r *Registry) lookup(uri string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uri]
	return e, ok
}

// Decode builds an instance of the type registered under uri from payload.
// The result is a pointer to the registered type.
func (r *Registry) Decode(payload any, uri string) (any, error) {
	e, ok := r.lookup(uri)
	if !ok {
		return nil, errors.InvalidPayload(fmt.Sprintf("type %q is not registered", uri))
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.InvalidPayload(fmt.Sprintf("%s: expected an object, got %T", uri, payload))
	}
	return e.decode(r, m)
}

// DecodeList decodes every element of payload. Any failing element fails the
// whole list.
func (r *Registry) DecodeList(payload any, uri string) ([]any, error) {
	items, ok := payload.([]any)
	if !ok {
		return nil, errors.InvalidPayload(fmt.Sprintf("%s: expected a list, got %T", uri, payload))
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := r.Decode(item, uri)
		if err != nil {
			return nil, wrapIndex(err, i)
		}
		out[i] = v
	}
	return out, nil
}

// Encode produces the wire payload of a registered instance.
func (r *Registry) Encode(v any) (map[string]any, error) {
	uri, ok := r.URIOf(v)
	if !ok {
		return nil, errors.InvalidPayload(fmt.Sprintf("type %T is not registered", v))
	}
	e, _ := r.lookup(uri)
	return e.encode(r, v)
}

// EncodeList encodes every element of values.
func (r *Registry) EncodeList(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		m, err := r.Encode(v)
		if err != nil {
			return nil, wrapIndex(err, i)
		}
		out[i] = m
	}
	return out, nil
}

// DecodeAs decodes payload into a *T registered in r.
func DecodeAs[T any](r *Registry, payload any) (*T, error) {
	r.mu.RLock()
	uri, ok := r.byType[reflect.TypeFor[*T]()]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return nil, errors.InvalidPayload(fmt.Sprintf("type %T is not registered", zero))
	}
	v, err := r.Decode(payload, uri)
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func wrapIndex(err error, i int) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return errors.InvalidPayload(fmt.Sprintf("item %d: %s", i, appErr.Message)).WithCause(appErr.Cause)
	}
	return errors.InvalidPayload(fmt.Sprintf("item %d", i)).WithCause(err)
}

// typed is the registry entry of one Type[T].
type typed[T any] struct {
	t      Type[T]
	goType reflect.Type
}

func (e *typed[T]) info() TypeInfo {
	return TypeInfo{URI: e.t.URI, GoType: e.goType}
}

func (e *typed[T]) keyFor(r *Registry, f Field[T], decoding bool) string {
	if decoding {
		switch {
		case f.decodeKey != "":
			return f.decodeKey
		case e.t.DecodeKey != nil:
			return e.t.DecodeKey(f.property)
		}
	} else {
		switch {
		case f.encodeKey != "":
			return f.encodeKey
		case e.t.EncodeKey != nil:
			return e.t.EncodeKey(f.property)
		}
	}
	return r.naming(f.property)
}

func (e *typed[T]) decode(r *Registry, payload map[string]any) (any, error) {
	var obj *T
	if e.t.New != nil {
		obj = e.t.New()
	} else {
		obj = new(T)
	}

	for _, f := range e.t.Fields {
		if f.excluded {
			continue
		}
		key := e.keyFor(r, f, true)
		raw, present := payload[key]
		if !present || raw == nil {
			if f.required {
				return nil, errors.InvalidPayload(fmt.Sprintf("%s: missing required key %q", e.t.URI, key))
			}
			continue
		}
		if f.decodeFn != nil {
			var err error
			if raw, err = f.decodeFn(raw); err != nil {
				return nil, errors.InvalidPayload(fmt.Sprintf("%s: transform of %q failed", e.t.URI, key)).WithCause(err)
			}
		}
		v, err := decodeValue(r, f.kind, f.typeURI, f.layout, raw)
		if err != nil {
			return nil, errors.InvalidPayload(fmt.Sprintf("%s: key %q: %v", e.t.URI, key, err)).WithCause(err)
		}
		if err := f.set(obj, v); err != nil {
			return nil, errors.InvalidPayload(fmt.Sprintf("%s: key %q: %v", e.t.URI, key, err)).WithCause(err)
		}
	}

	if e.t.Validate {
		if err := validation.Validate(obj); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (e *typed[T]) encode(r *Registry, v any) (map[string]any, error) {
	obj := v.(*T)
	if obj == nil {
		return nil, errors.InvalidPayload(fmt.Sprintf("%s: nil instance", e.t.URI))
	}
	out := make(map[string]any, len(e.t.Fields))
	for _, f := range e.t.Fields {
		if f.excluded {
			continue
		}
		key := e.keyFor(r, f, false)
		wire, ok, err := encodeValue(r, f.kind, f.layout, f.get(obj))
		if err != nil {
			return nil, errors.InvalidPayload(fmt.Sprintf("%s: property %q: %v", e.t.URI, f.property, err)).WithCause(err)
		}
		if !ok {
			continue
		}
		if f.encodeFn != nil {
			if wire, err = f.encodeFn(wire); err != nil {
				return nil, errors.InvalidPayload(fmt.Sprintf("%s: transform of %q failed", e.t.URI, f.property)).WithCause(err)
			}
		}
		out[key] = wire
	}
	return out, nil
}
