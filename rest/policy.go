package rest

import (
	"fmt"
	"strings"
)

// Method is an HTTP method understood by the engine.
type Method string

const (
	MethodPost   Method = "POST"
	MethodGet    Method = "GET"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodHead   Method = "HEAD"
	MethodPatch  Method = "PATCH"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodPost, MethodGet, MethodPut, MethodDelete, MethodHead, MethodPatch:
		return true
	}
	return false
}

// Cacheable reports whether successful responses to m are written to the cache.
func (m Method) Cacheable() bool {
	return m == MethodGet || m == MethodHead
}

// HasBody reports whether the body of a request with method m is sent as the
// request entity rather than as query parameters.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// CachePolicy selects how the controller arbitrates between cache and network.
type CachePolicy int

const (
	// IgnoreCache goes to the network and never writes the response to the cache.
	IgnoreCache CachePolicy = iota + 1
	// CacheOnly answers from the cache and never touches the network.
	CacheOnly
	// CacheThenNetwork emits the cached response, if any, then the network one.
	CacheThenNetwork
	// CacheElseNetwork answers from the cache and falls back to the network.
	CacheElseNetwork
	// NetworkElseCache answers from the network and falls back to the cache.
	NetworkElseCache
	// NetworkOnly goes to the network and writes successful responses through.
	NetworkOnly
)

// DefaultCachePolicy is used when a request does not set one.
const DefaultCachePolicy = NetworkOnly

var cachePolicyNames = map[CachePolicy]string{
	IgnoreCache:      "ignore_cache",
	CacheOnly:        "cache_only",
	CacheThenNetwork: "cache_then_network",
	CacheElseNetwork: "cache_else_network",
	NetworkElseCache: "network_else_cache",
	NetworkOnly:      "network_only",
}

func (p CachePolicy) String() string {
	if name, ok := cachePolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("cache_policy(%d)", int(p))
}

// Valid reports whether p is a known policy.
func (p CachePolicy) Valid() bool {
	_, ok := cachePolicyNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p CachePolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid cache policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *CachePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseCachePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseCachePolicy parses a policy name such as "cache_else_network".
func ParseCachePolicy(s string) (CachePolicy, error) {
	key := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for p, name := range cachePolicyNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown cache policy %q", s)
}

// TimeoutPolicy selects what happens when an attempt times out.
type TimeoutPolicy int

const (
	// TimeoutNone reports a TIMEOUT error to the caller.
	TimeoutNone TimeoutPolicy = iota
	// TimeoutRetry retries up to the request's retry count before reporting TIMEOUT.
	TimeoutRetry
	// TimeoutStopExecution abandons the request; no completion is ever delivered.
	TimeoutStopExecution
)

var timeoutPolicyNames = map[TimeoutPolicy]string{
	TimeoutNone:          "none",
	TimeoutRetry:         "retry",
	TimeoutStopExecution: "stop_execution",
}

func (p TimeoutPolicy) String() string {
	if name, ok := timeoutPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("timeout_policy(%d)", int(p))
}

// Valid reports whether p is a known policy.
func (p TimeoutPolicy) Valid() bool {
	_, ok := timeoutPolicyNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p TimeoutPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid timeout policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TimeoutPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeoutPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseTimeoutPolicy parses a policy name such as "retry".
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	key := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	if key == "" {
		return TimeoutNone, nil
	}
	for p, name := range timeoutPolicyNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown timeout policy %q", s)
}
