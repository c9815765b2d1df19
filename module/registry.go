package module

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/restkit/logger"
)

// DefaultStopTimeout bounds the Stop call of a single module.
const DefaultStopTimeout = 10 * time.Second

type moduleEntry struct {
	module  Module
	started bool
}

// Registry manages module lifecycle with deterministic ordering.
type Registry struct {
	mu      sync.RWMutex
	entries []*moduleEntry
	lookup  map[string]*moduleEntry
	log     *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		lookup: make(map[string]*moduleEntry),
		log:    logger.OrGlobal(log).WithComponent("modules"),
	}
}

// Register adds a module. Register dependencies first.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.lookup[name]; exists {
		return fmt.Errorf("module %s already registered", name)
	}
	entry := &moduleEntry{module: m}
	r.entries = append(r.entries, entry)
	r.lookup[name] = entry

	r.log.Debug("module registered", logger.Fields("module", name))
	return nil
}

// StartAll starts every module in registration order. If one fails, the
// modules already started are stopped again in reverse order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		if entry.started {
			continue
		}
		name := entry.module.Name()
		if err := entry.module.Start(ctx); err != nil {
			r.log.Error("module start failed", logger.Fields("module", name, logger.FieldError, err.Error()))
			startErr := fmt.Errorf("failed to start %s: %w", name, err)
			if stopErr := r.stopLocked(ctx); stopErr != nil {
				return errors.Join(startErr, stopErr)
			}
			return startErr
		}
		entry.started = true
		r.log.Debug("module started", logger.Fields("module", name))
	}
	return nil
}

// StopAll stops every started module in reverse registration order.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(ctx)
}

func (r *Registry) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}
		name := entry.module.Name()

		stopCtx, cancel := context.WithTimeout(ctx, DefaultStopTimeout)
		if err := entry.module.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			r.log.Error("module stop failed", logger.Fields("module", name, logger.FieldError, err.Error()))
		} else {
			r.log.Debug("module stopped", logger.Fields("module", name))
		}
		cancel()
		entry.started = false
	}
	return errors.Join(errs...)
}

// HealthAll returns the health of every module in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]Health, 0, len(r.entries))
	for _, entry := range r.entries {
		results = append(results, entry.module.Health(ctx))
	}
	return results
}

// Get returns a registered module by name, or nil if not found.
func (r *Registry) Get(name string) Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.lookup[name]; ok {
		return entry.module
	}
	return nil
}

// Names returns module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.module.Name()
	}
	return names
}
