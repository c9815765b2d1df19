package session

import (
	"context"
	"strings"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/rest"
)

// Extractor captures the session token carried by a login response.
type Extractor struct {
	store Store
	key   []string
	id    string
	log   *logger.Logger
}

// NewExtractor reads the token at key (dot separated) and stores it under id.
func NewExtractor(store Store, key, id string, log *logger.Logger) *Extractor {
	return &Extractor{
		store: store,
		key:   strings.Split(key, "."),
		id:    id,
		log:   logger.OrGlobal(log).WithComponent("session"),
	}
}

// Capture stores the token of a successful response and makes it the current
// session. Failed responses are ignored. A successful response without a
// token yields INVALID_SESSION_TOKEN.
func (e *Extractor) Capture(ctx context.Context, resp *rest.Response) (bool, error) {
	if resp == nil || resp.Err != nil {
		return false, nil
	}
	payload := resp.Data
	if _, ok := payload.(map[string]any); !ok && len(resp.RawBody) > 0 {
		parsed, err := rest.ParseJSON(resp.RawBody)
		if err != nil {
			return false, errors.InvalidSessionToken().WithCause(err)
		}
		payload = parsed
	}

	token, ok := lookup(payload, e.key)
	if !ok {
		return false, errors.InvalidSessionToken()
	}
	if err := e.store.Store(ctx, token, e.id); err != nil {
		return false, errors.LocalInternal(err)
	}
	e.log.Debug("session token captured", logger.Fields(logger.FieldKey, e.id))
	return true, nil
}

func lookup(v any, path []string) (string, bool) {
	for _, k := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		v = m[k]
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
