package core

import (
	"fmt"

	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/config"
	"github.com/kbukum/restkit/eventually"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/runner"
	"github.com/kbukum/restkit/session"
	"github.com/kbukum/restkit/transport"
	"github.com/kbukum/restkit/validation"
)

// Config is the complete client configuration.
//
//	name: shop-app
//	base_url: https://api.example.com/v1
//	api:
//	  timeout: 20s
//	  auth: {type: session}
//	runner:
//	  capacity: {wifi: 4, wan: 2}
//	cache:
//	  provider: file
//	  dir: /var/lib/shop/cache
//	eventually:
//	  store: badger
//	  dir: /var/lib/shop/queue
type Config struct {
	config.BaseConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is prepended to request endpoints built by the client.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	Logging       logger.Config             `yaml:"logging" mapstructure:"logging"`
	API           transport.Config          `yaml:"api" mapstructure:"api"`
	Runner        runner.Config             `yaml:"runner" mapstructure:"runner"`
	Cache         cache.Config              `yaml:"cache" mapstructure:"cache"`
	Eventually    eventually.Config         `yaml:"eventually" mapstructure:"eventually"`
	Reachability  reachability.ProberConfig `yaml:"reachability" mapstructure:"reachability"`
	Session       session.Config            `yaml:"session" mapstructure:"session"`
	Observability observability.Config      `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills zero values of every section.
func (c *Config) ApplyDefaults() {
	c.BaseConfig.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.API.ApplyDefaults()
	c.Runner.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Eventually.ApplyDefaults()
	c.Reachability.ApplyDefaults()
	c.Session.ApplyDefaults()
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = c.Name
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"base", &c.BaseConfig},
		{"logging", &c.Logging},
		{"api", &c.API},
		{"runner", &c.Runner},
		{"cache", &c.Cache},
		{"eventually", &c.Eventually},
		{"reachability", &c.Reachability},
		{"session", &c.Session},
		{"observability", &c.Observability},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// LoadConfig reads the configuration of the named client from its config
// file, .env file and environment, then applies defaults and validates it.
func LoadConfig(name string, opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	if err := config.LoadConfig(name, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
