package mapper

import (
	"fmt"
	"time"
)

// Kind is the wire representation of a mapped field.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindTime
	KindStringList
	KindRaw
	KindObject
	KindObjectList
)

// TransformFunc converts a wire value.
type TransformFunc func(any) (any, error)

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
}

type float interface {
	~float32 | ~float64
}

// Field maps one property of T to one wire key.
type Field[T any] struct {
	property  string
	decodeKey string
	encodeKey string
	kind      Kind
	typeURI   string
	required  bool
	excluded  bool
	layout    string
	decodeFn  TransformFunc
	encodeFn  TransformFunc
	get       func(*T) any
	set       func(*T, any) error
}

// Key sets the wire key used in both directions.
func (f Field[T]) Key(key string) Field[T] {
	f.decodeKey = key
	f.encodeKey = key
	return f
}

// DecodeFrom sets the wire key read when decoding.
func (f Field[T]) DecodeFrom(key string) Field[T] {
	f.decodeKey = key
	return f
}

// EncodeAs sets the wire key written when encoding.
func (f Field[T]) EncodeAs(key string) Field[T] {
	f.encodeKey = key
	return f
}

// Required makes decoding fail when the key is absent or null.
func (f Field[T]) Required() Field[T] {
	f.required = true
	return f
}

// Exclude skips the field in both directions.
func (f Field[T]) Exclude() Field[T] {
	f.excluded = true
	return f
}

// Format sets the time layout of a KindTime field.
func (f Field[T]) Format(layout string) Field[T] {
	f.layout = layout
	return f
}

// Transform installs value converters. decode runs on the raw wire value before
// kind conversion; encode runs on the wire value after it. Either may be nil.
func (f Field[T]) Transform(decode, encode TransformFunc) Field[T] {
	f.decodeFn = decode
	f.encodeFn = encode
	return f
}

// Property returns the property name of the field.
func (f Field[T]) Property() string { return f.property }

// String maps a string property.
func String[T any](property string, ptr func(*T) *string) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindString,
		get:      func(t *T) any { return *ptr(t) },
		set: func(t *T, v any) error {
			*ptr(t) = v.(string)
			return nil
		},
	}
}

// Int maps an integer property.
func Int[T any, N integer](property string, ptr func(*T) *N) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindInt,
		get:      func(t *T) any { return int64(*ptr(t)) },
		set: func(t *T, v any) error {
			n := v.(int64)
			if int64(N(n)) != n {
				return fmt.Errorf("%d out of range for %T", n, N(0))
			}
			*ptr(t) = N(n)
			return nil
		},
	}
}

// Float maps a floating point property.
func Float[T any, N float](property string, ptr func(*T) *N) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindFloat,
		get:      func(t *T) any { return float64(*ptr(t)) },
		set: func(t *T, v any) error {
			*ptr(t) = N(v.(float64))
			return nil
		},
	}
}

// Bool maps a boolean property.
func Bool[T any](property string, ptr func(*T) *bool) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindBool,
		get:      func(t *T) any { return *ptr(t) },
		set: func(t *T, v any) error {
			*ptr(t) = v.(bool)
			return nil
		},
	}
}

// Time maps a time property. Strings are parsed with the field layout
// (RFC 3339 by default); numbers are read as Unix seconds.
func Time[T any](property string, ptr func(*T) *time.Time) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindTime,
		layout:   time.RFC3339Nano,
		get:      func(t *T) any { return *ptr(t) },
		set: func(t *T, v any) error {
			*ptr(t) = v.(time.Time)
			return nil
		},
	}
}

// StringList maps a list of strings.
func StringList[T any](property string, ptr func(*T) *[]string) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindStringList,
		get:      func(t *T) any { return *ptr(t) },
		set: func(t *T, v any) error {
			*ptr(t) = v.([]string)
			return nil
		},
	}
}

// Raw maps a property holding the wire value unchanged.
func Raw[T any](property string, ptr func(*T) *any) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindRaw,
		get:      func(t *T) any { return *ptr(t) },
		set: func(t *T, v any) error {
			*ptr(t) = v
			return nil
		},
	}
}

// Object maps a nested object of the registered type uri.
func Object[T, N any](property, uri string, ptr func(*T) **N) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindObject,
		typeURI:  uri,
		get: func(t *T) any {
			if p := *ptr(t); p != nil {
				return p
			}
			return nil
		},
		set: func(t *T, v any) error {
			n, ok := v.(*N)
			if !ok {
				return fmt.Errorf("expected %T, got %T", n, v)
			}
			*ptr(t) = n
			return nil
		},
	}
}

// ObjectList maps a list of nested objects of the registered type uri.
func ObjectList[T, N any](property, uri string, ptr func(*T) *[]*N) Field[T] {
	return Field[T]{
		property: property,
		kind:     KindObjectList,
		typeURI:  uri,
		get: func(t *T) any {
			items := *ptr(t)
			if items == nil {
				return nil
			}
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = item
			}
			return out
		},
		set: func(t *T, v any) error {
			items := v.([]any)
			out := make([]*N, len(items))
			for i, item := range items {
				n, ok := item.(*N)
				if !ok {
					return fmt.Errorf("item %d: expected %T, got %T", i, n, item)
				}
				out[i] = n
			}
			*ptr(t) = out
			return nil
		},
	}
}
