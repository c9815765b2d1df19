package runner

import (
	"fmt"
	"time"

	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/resilience"
)

// Capacity holds the concurrency cap per reachability status. NotReachable
// always maps to 0.
type Capacity struct {
	WiFi    int `yaml:"wifi" mapstructure:"wifi"`
	WAN     int `yaml:"wan" mapstructure:"wan"`
	Unknown int `yaml:"unknown" mapstructure:"unknown"`
}

// For returns the cap for status.
func (c Capacity) For(status reachability.Status) int {
	switch status {
	case reachability.StatusReachableViaWiFi:
		return c.WiFi
	case reachability.StatusReachableViaWAN:
		return c.WAN
	case reachability.StatusNotReachable:
		return 0
	}
	return c.Unknown
}

// Config configures a Runner.
type Config struct {
	Capacity Capacity `yaml:"capacity" mapstructure:"capacity"`
	// DefaultTimeout bounds one transport call when the request sets none.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout"`
	// RetryAttempts is the number of tries made for a request run with
	// RetryIfFailed, including the first.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryBackoff is the initial delay between those tries.
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// CircuitBreaker guards each host when enabled.
	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Capacity.WiFi == 0 {
		c.Capacity.WiFi = 4
	}
	if c.Capacity.WAN == 0 {
		c.Capacity.WAN = 2
	}
	if c.Capacity.Unknown == 0 {
		c.Capacity.Unknown = 4
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 4
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Capacity.WiFi < 0 || c.Capacity.WAN < 0 || c.Capacity.Unknown < 0 {
		return fmt.Errorf("runner: capacity must not be negative")
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("runner: default_timeout must not be negative")
	}
	return nil
}
