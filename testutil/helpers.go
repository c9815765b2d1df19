package testutil

import (
	"context"
	"testing"

	"github.com/kbukum/restkit/module"
)

// CleanupFunc is a function that performs cleanup, typically stopping a module.
type CleanupFunc func() error

// Setup starts a module and returns a cleanup function.
func Setup(m module.Module) (CleanupFunc, error) {
	return SetupWithContext(context.Background(), m)
}

// SetupWithContext starts a module with a custom context and returns a cleanup function.
func SetupWithContext(ctx context.Context, m module.Module) (CleanupFunc, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return func() error { return m.Stop(ctx) }, nil
}

// THelper provides testing.T integration for easier test setup.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps a testing.TB to provide helper methods.
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background()}
}

// WithContext sets a custom context for the helper.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts a module and stops it when the test ends.
func (h *THelper) Setup(m module.Module) {
	h.t.Helper()
	if err := m.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start module %s: %v", m.Name(), err)
	}
	h.t.Cleanup(func() {
		if err := m.Stop(context.Background()); err != nil {
			h.t.Errorf("failed to stop module %s: %v", m.Name(), err)
		}
	})
}
