package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/validation"
)

const snapshotVersion = 1

// snapshot is the persisted form of a Request.
type snapshot struct {
	Version       int               `json:"v"`
	ID            string            `json:"id"`
	BaseURL       string            `json:"base_url,omitempty"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Method        Method            `json:"method"`
	Headers       map[string]string `json:"headers,omitempty"`
	Query         map[string]string `json:"query,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	Attachments   []Attachment      `json:"attachments,omitempty"`
	CachePolicy   CachePolicy       `json:"cache_policy"`
	TimeoutPolicy TimeoutPolicy     `json:"timeout_policy"`
	RetryCount    int               `json:"retry_count,omitempty"`
	Timeout       time.Duration     `json:"timeout,omitempty"`
	CacheMaxAge   time.Duration     `json:"cache_max_age,omitempty"`
	TargetType    string            `json:"target_type,omitempty"`
	ObjectMapping bool              `json:"object_mapping,omitempty"`
}

// MarshalSnapshot encodes every field of r, including its identifier.
func MarshalSnapshot(r *Request) ([]byte, error) {
	s := snapshot{
		Version:       snapshotVersion,
		ID:            r.id,
		BaseURL:       r.baseURL,
		Endpoint:      r.endpoint,
		Method:        r.method,
		Headers:       r.headers,
		Query:         r.query,
		Attachments:   r.attachments,
		CachePolicy:   r.cachePolicy,
		TimeoutPolicy: r.timeoutPolicy,
		RetryCount:    r.retryCount,
		Timeout:       r.timeout,
		CacheMaxAge:   r.cacheMaxAge,
		TargetType:    r.targetType,
		ObjectMapping: r.objectMapping,
	}
	if r.body != nil {
		body, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.LocalInternal(err)
		}
		s.Body = body
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.LocalInternal(err)
	}
	return data, nil
}

// UnmarshalSnapshot rebuilds a Request produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Request, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.InvalidPayload("malformed request snapshot").WithCause(err)
	}
	if s.Version != snapshotVersion {
		return nil, errors.InvalidPayload(fmt.Sprintf("unsupported snapshot version %d", s.Version))
	}
	if err := validation.New().UUID("id", s.ID).Validate(); err != nil {
		return nil, err
	}

	r := &Request{
		id:            s.ID,
		baseURL:       s.BaseURL,
		endpoint:      s.Endpoint,
		method:        s.Method,
		headers:       s.Headers,
		query:         s.Query,
		attachments:   s.Attachments,
		cachePolicy:   s.CachePolicy,
		timeoutPolicy: s.TimeoutPolicy,
		retryCount:    s.RetryCount,
		timeout:       s.Timeout,
		cacheMaxAge:   s.CacheMaxAge,
		targetType:    s.TargetType,
		objectMapping: s.ObjectMapping,
	}
	if len(s.Body) > 0 {
		if err := decodeJSON(s.Body, &r.body); err != nil {
			return nil, errors.InvalidPayload("malformed request body").WithCause(err)
		}
	}
	return r.apply(nil)
}
