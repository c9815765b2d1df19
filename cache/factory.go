package cache

import (
	"fmt"
	"sync"

	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

// Deps are the shared collaborators handed to backend factories.
type Deps struct {
	Logger *logger.Logger
	// Locks guards file paths shared with other components of the process.
	Locks *filelock.Table
}

// Factory creates a Cache for a provider.
type Factory func(cfg Config, deps Deps) (Cache, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		ProviderMemory: func(cfg Config, _ Deps) (Cache, error) {
			return NewMemory(cfg.MaxEntries), nil
		},
	}
)

// RegisterFactory registers a backend factory for the given provider name.
// Backend packages call this from an init function.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New creates the Cache selected by cfg.Provider. The backend package must
// have been imported so its factory is registered.
func New(cfg Config, deps Deps) (Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Locks == nil {
		deps.Locks = filelock.NewTable()
	}
	deps.Logger = logger.OrGlobal(deps.Logger).WithComponent("cache")

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cache: provider %q not registered", cfg.Provider)
	}

	deps.Logger.Info("initializing cache", logger.Fields("provider", cfg.Provider))
	return f(cfg, deps)
}
