package reachability

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
)

// ProberConfig configures active reachability probing.
type ProberConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Address  string        `yaml:"address" mapstructure:"address"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// WANInterfaces are name prefixes of cellular interfaces.
	WANInterfaces []string `yaml:"wan_interfaces" mapstructure:"wan_interfaces"`
}

// ApplyDefaults applies default values.
func (c *ProberConfig) ApplyDefaults() {
	if c.Address == "" {
		c.Address = "1.1.1.1:443"
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if len(c.WANInterfaces) == 0 {
		c.WANInterfaces = []string{"rmnet", "pdp_ip", "wwan", "ppp", "ccmni"}
	}
}

// Validate validates the configuration.
func (c *ProberConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("reachability.address: %w", err)
	}
	if c.Interval <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("reachability.interval and reachability.timeout must be positive")
	}
	return nil
}

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober periodically dials a probe address and feeds the result to a Monitor.
type Prober struct {
	cfg     ProberConfig
	monitor *Monitor
	dial    DialFunc
	ifaces  func() ([]net.Interface, error)
	log     *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

var _ module.Module = (*Prober)(nil)

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithDialer replaces the network dialer.
func WithDialer(d DialFunc) ProberOption {
	return func(p *Prober) { p.dial = d }
}

// WithInterfaces replaces the interface lister used for classification.
func WithInterfaces(fn func() ([]net.Interface, error)) ProberOption {
	return func(p *Prober) { p.ifaces = fn }
}

// NewProber creates a prober feeding m.
func NewProber(cfg ProberConfig, m *Monitor, log *logger.Logger, opts ...ProberOption) *Prober {
	cfg.ApplyDefaults()
	p := &Prober{
		cfg:     cfg,
		monitor: m,
		dial:    (&net.Dialer{}).DialContext,
		ifaces:  net.Interfaces,
		log:     logger.OrGlobal(log).WithComponent("reachability.prober"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements module.Module.
func (p *Prober) Name() string { return "reachability" }

// Start probes once synchronously and then keeps probing in the background.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	p.monitor.Update(p.Probe(ctx))
	go p.loop(loopCtx, done)
	return nil
}

// Stop ends background probing.
func (p *Prober) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health implements module.Module.
func (p *Prober) Health(ctx context.Context) module.Health {
	p.mu.Lock()
	lastErr := p.lastErr
	p.mu.Unlock()

	status := p.monitor.Status()
	h := module.Health{Name: p.Name(), Status: module.StatusHealthy, Message: status.String()}
	if !status.Reachable() {
		h.Status = module.StatusDegraded
		if lastErr != nil {
			h.Message = lastErr.Error()
		}
	}
	return h
}

func (p *Prober) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.monitor.Update(p.Probe(ctx))
		}
	}
}

// Probe dials the probe address once and classifies the result.
func (p *Prober) Probe(ctx context.Context) Status {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.cfg.Address)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		p.log.Debug("probe failed", logger.Fields("address", p.cfg.Address, logger.FieldError, err.Error()))
		return StatusNotReachable
	}
	defer conn.Close()
	return p.classify(conn.LocalAddr())
}

// classify maps the local address of a successful probe to WAN or WiFi by the
// name of the interface that carries it.
func (p *Prober) classify(local net.Addr) Status {
	tcp, ok := local.(*net.TCPAddr)
	if !ok {
		return StatusReachableViaWiFi
	}
	ifaces, err := p.ifaces()
	if err != nil {
		return StatusReachableViaWiFi
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || !ipNet.IP.Equal(tcp.IP) {
				continue
			}
			if p.isWAN(iface.Name) {
				return StatusReachableViaWAN
			}
			return StatusReachableViaWiFi
		}
	}
	return StatusReachableViaWiFi
}

func (p *Prober) isWAN(name string) bool {
	for _, prefix := range p.cfg.WANInterfaces {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
