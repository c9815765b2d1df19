package transport

import (
	"fmt"
	"time"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 32 << 20
)

// Config configures the HTTP transport.
type Config struct {
	// Timeout bounds a whole exchange when the context carries no deadline.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Headers are default headers applied to every request. Request headers win.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Auth configures authentication applied to every request.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// TLS configures TLS settings for the HTTP transport.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`

	// HTTP2 negotiates HTTP/2 over TLS.
	HTTP2 bool `yaml:"http2" mapstructure:"http2"`

	// H2C speaks cleartext HTTP/2 to http:// endpoints.
	H2C bool `yaml:"h2c" mapstructure:"h2c"`

	// RateLimit throttles outbound requests. Zero RPS disables it.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// MaxResponseBytes caps the size of a response body.
	MaxResponseBytes int64 `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
}

// RateLimitConfig is a token bucket: RPS tokens per second, Burst capacity.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	c.Auth.ApplyDefaults()
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("transport: timeout must be positive")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("transport: rate_limit.rps must not be negative")
	}
	if c.HTTP2 && c.H2C {
		return fmt.Errorf("transport: http2 and h2c are mutually exclusive")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.TLS.Validate()
}
