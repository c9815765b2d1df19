package reachability

import (
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
)

type recordingListener struct {
	name string
	log  *[]string
}

func (r *recordingListener) ReachabilityChanged(m *Monitor, s Status) {
	*r.log = append(*r.log, r.name+":"+s.String())
}

func TestMonitor_NotifiesInOrderOnTransitions(t *testing.T) {
	m := NewMonitor(logger.NewNop())
	var events []string
	a := &recordingListener{name: "a", log: &events}
	b := &recordingListener{name: "b", log: &events}
	m.AddListener(a)
	m.AddListener(b)
	m.AddListener(a)
	unsubscribe := m.Subscribe(func(s Status) { events = append(events, "fn:"+s.String()) })

	if m.ListenerCount() != 3 {
		t.Fatalf("duplicate registration must be ignored, got %d listeners", m.ListenerCount())
	}

	m.Update(StatusReachableViaWiFi)
	m.Update(StatusReachableViaWiFi)
	want := []string{"a:wifi", "b:wifi", "fn:wifi"}
	if !slices.Equal(events, want) {
		t.Fatalf("expected %v, got %v", want, events)
	}

	unsubscribe()
	m.RemoveListener(a)
	m.RemoveListener(&recordingListener{})
	events = nil
	m.Update(StatusNotReachable)
	if !slices.Equal(events, []string{"b:not_reachable"}) {
		t.Errorf("unexpected events after removal %v", events)
	}

	m.RemoveAllListeners()
	events = nil
	m.Update(StatusReachableViaWAN)
	if len(events) != 0 {
		t.Errorf("expected no notifications, got %v", events)
	}
	if m.Status() != StatusReachableViaWAN {
		t.Errorf("expected wan, got %s", m.Status())
	}
}

func TestMonitor_ConcurrentUpdatesSerialized(t *testing.T) {
	m := NewMonitor(logger.NewNop())
	var (
		mu     sync.Mutex
		inside int
		maxIn  int
	)
	m.Subscribe(func(Status) {
		mu.Lock()
		inside++
		if inside > maxIn {
			maxIn = inside
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inside--
		mu.Unlock()
	})
	var wg sync.WaitGroup
	statuses := []Status{StatusNotReachable, StatusReachableViaWAN, StatusReachableViaWiFi}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(s Status) {
			defer wg.Done()
			m.Update(s)
		}(statuses[i%3])
	}
	wg.Wait()
	if maxIn != 1 {
		t.Errorf("notifications overlapped (max %d concurrent)", maxIn)
	}
}

func TestStatus(t *testing.T) {
	if StatusUnknown.Reachable() || StatusNotReachable.Reachable() {
		t.Error("unknown and not reachable are not reachable")
	}
	if !StatusReachableViaWAN.Reachable() || !StatusReachableViaWiFi.Reachable() {
		t.Error("wan and wifi are reachable")
	}
}

func TestProber_ProbeReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	m := NewMonitor(logger.NewNop())
	p := NewProber(ProberConfig{Enabled: true, Address: ln.Addr().String(), Interval: time.Hour}, m, logger.NewNop(),
		WithInterfaces(func() ([]net.Interface, error) { return nil, nil }))
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(context.Background())

	if m.Status() != StatusReachableViaWiFi {
		t.Errorf("expected wifi after successful probe, got %s", m.Status())
	}
	if h := p.Health(context.Background()); h.Status != module.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
}

func TestProber_StartStopCycles(t *testing.T) {
	m := NewMonitor(logger.NewNop())
	p := NewProber(ProberConfig{Enabled: true, Address: "api.example.com:443", Interval: time.Millisecond}, m, logger.NewNop(),
		WithInterfaces(func() ([]net.Interface, error) { return nil, nil }),
		WithDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
			client, server := net.Pipe()
			server.Close()
			return client, nil
		}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Start(ctx); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		time.Sleep(5 * time.Millisecond)
		if err := p.Stop(ctx); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
	// The background loop must have exited cleanly after the last Stop.
	time.Sleep(20 * time.Millisecond)
	if err := p.Stop(ctx); err != nil {
		t.Errorf("stop on a stopped prober: %v", err)
	}
	if m.Status() != StatusReachableViaWiFi {
		t.Errorf("expected wifi, got %s", m.Status())
	}
}

func TestProber_ProbeUnreachable(t *testing.T) {
	m := NewMonitor(logger.NewNop())
	p := NewProber(ProberConfig{Address: "example.invalid:443"}, m, logger.NewNop(),
		WithDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("network is unreachable")
		}))
	if got := p.Probe(context.Background()); got != StatusNotReachable {
		t.Errorf("expected not reachable, got %s", got)
	}
	m.Update(StatusNotReachable)
	if h := p.Health(context.Background()); h.Status != module.StatusDegraded || h.Message != "network is unreachable" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestProber_ClassifyWAN(t *testing.T) {
	p := NewProber(ProberConfig{}, NewMonitor(logger.NewNop()), logger.NewNop())
	p.cfg.WANInterfaces = []string{"rmnet"}
	if !p.isWAN("rmnet_data0") || p.isWAN("wlan0") {
		t.Error("unexpected WAN classification")
	}
	if got := p.classify(&net.UDPAddr{}); got != StatusReachableViaWiFi {
		t.Errorf("non-TCP addresses default to wifi, got %s", got)
	}
}

func TestProberConfig(t *testing.T) {
	cfg := ProberConfig{Enabled: true}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.Address = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Error("expected address error")
	}
}
