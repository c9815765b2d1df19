package eventually

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultMaxAttempts   = 5
	DefaultRetryInterval = 10 * time.Minute
	DefaultPollInterval  = time.Minute
	DefaultDir           = "restkit-queue"
)

// Config configures a Queue and its store.
type Config struct {
	// MaxAttempts bounds the attempts of one entry.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RetryInterval is the minimum spacing between two attempts of an entry.
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval"`
	// PollInterval wakes the drain loop when nothing else does.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// Store selects the backend: "memory", "file" or "badger".
	Store string `yaml:"store" mapstructure:"store"`
	// Dir is the directory of the file and badger stores.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.Dir == "" && c.Store != StoreMemory {
		c.Dir = DefaultDir
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreBadger:
	default:
		return fmt.Errorf("eventually: unsupported store %q", c.Store)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("eventually: max_attempts must be at least 1")
	}
	return nil
}
