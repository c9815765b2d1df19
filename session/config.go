package session

import (
	"fmt"

	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
)

// Default configuration values.
const (
	DefaultPath       = "restkit-session.enc"
	DefaultIdentifier = "default"
	DefaultTokenKey   = "sessionToken"
)

// Config configures the session store.
type Config struct {
	// Store selects the backend: "memory" (default) or "file".
	Store string `yaml:"store" mapstructure:"store"`
	// Path is the session file of the file store.
	Path string `yaml:"path" mapstructure:"path"`
	// Passphrase encrypts the session file.
	Passphrase string `yaml:"passphrase" mapstructure:"passphrase"`
	// Identifier names the session captured from login responses.
	Identifier string `yaml:"identifier" mapstructure:"identifier"`
	// TokenKey is the payload key holding the session token in a login
	// response. Dots select nested objects.
	TokenKey string `yaml:"token_key" mapstructure:"token_key"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Identifier == "" {
		c.Identifier = DefaultIdentifier
	}
	if c.TokenKey == "" {
		c.TokenKey = DefaultTokenKey
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if c.Passphrase == "" {
			return fmt.Errorf("session: passphrase is required for the file store")
		}
	default:
		return fmt.Errorf("session: unsupported store %q", c.Store)
	}
	return nil
}

// Open creates the store selected by cfg.
func Open(cfg Config, locks *filelock.Table, log *logger.Logger) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == StoreFile {
		return NewFileStore(cfg.Path, cfg.Passphrase, log, WithLocks(locks))
	}
	s := NewMemoryStore()
	if log != nil {
		s.log = log.WithComponent("session")
	}
	return s, nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session: identifier is required")
	}
	return nil
}
