package cache

import (
	"fmt"
	"time"
)

// Provider names.
const (
	ProviderMemory = "memory"
	ProviderFile   = "file"
	ProviderRedis  = "redis"
)

// Default configuration values.
const (
	DefaultProvider  = ProviderMemory
	DefaultDir       = "restkit-cache"
	DefaultKeyPrefix = "restkit:cache"
)

// Config selects and configures a cache backend.
type Config struct {
	// Provider selects the backend: "memory", "file" or "redis".
	Provider string `yaml:"provider" mapstructure:"provider"`

	// MaxEntries bounds the memory backend. 0 means unbounded.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`

	// Dir is the directory of the file backend.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// MaxSizeBytes bounds the file backend; the oldest entries are evicted
	// first. 0 means unbounded.
	MaxSizeBytes int64 `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`

	// Addr is the redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr"`
	// Password is the redis password.
	Password string `yaml:"password" mapstructure:"password"`
	// DB is the redis database number.
	DB int `yaml:"db" mapstructure:"db"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	// TTL expires redis entries server-side. 0 keeps them until removed.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Provider == ProviderFile && c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Provider == ProviderRedis && c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderMemory, ProviderFile, ProviderRedis:
	default:
		return fmt.Errorf("cache: unsupported provider %q", c.Provider)
	}
	if c.Provider == ProviderRedis && c.Addr == "" {
		return fmt.Errorf("cache: addr is required for the redis provider")
	}
	if c.MaxEntries < 0 || c.MaxSizeBytes < 0 {
		return fmt.Errorf("cache: size limits must not be negative")
	}
	if c.TTL < 0 {
		return fmt.Errorf("cache: ttl must not be negative")
	}
	return nil
}
