package reachability

import (
	"sync"

	"github.com/kbukum/restkit/logger"
)

// Status is the reachability of the network.
type Status int

const (
	StatusUnknown Status = iota
	StatusNotReachable
	StatusReachableViaWAN
	StatusReachableViaWiFi
)

func (s Status) String() string {
	switch s {
	case StatusNotReachable:
		return "not_reachable"
	case StatusReachableViaWAN:
		return "wan"
	case StatusReachableViaWiFi:
		return "wifi"
	}
	return "unknown"
}

// Reachable reports whether requests can leave the device.
func (s Status) Reachable() bool {
	return s == StatusReachableViaWAN || s == StatusReachableViaWiFi
}

// Listener is notified of reachability transitions. Implementations must be
// comparable (typically pointers); registering the same listener twice has no
// effect.
type Listener interface {
	ReachabilityChanged(m *Monitor, status Status)
}

type subscription struct {
	listener Listener
	fn       func(Status)
	id       uint64
}

// Monitor holds the current status and the ordered set of listeners.
type Monitor struct {
	mu     sync.Mutex
	status Status
	subs   []subscription
	nextID uint64

	notifyMu sync.Mutex
	log      *logger.Logger
}

// NewMonitor creates a monitor in StatusUnknown.
func NewMonitor(log *logger.Logger) *Monitor {
	return &Monitor{log: logger.OrGlobal(log).WithComponent("reachability")}
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// AddListener registers l. Listeners are notified in registration order.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.listener != nil && s.listener == l {
			return
		}
	}
	m.nextID++
	m.subs = append(m.subs, subscription{listener: l, id: m.nextID})
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (m *Monitor) RemoveListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.listener != nil && s.listener == l {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners unregisters every listener and subscription.
func (m *Monitor) RemoveAllListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = nil
}

// Subscribe registers fn and returns the function that unregisters it.
func (m *Monitor) Subscribe(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{fn: fn, id: id})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered listeners and subscriptions.
func (m *Monitor) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Update sets the status. On a transition every listener is notified
// synchronously, in registration order, before Update returns. Concurrent
// updates are delivered one at a time; listeners must not call Update.
func (m *Monitor) Update(status Status) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = status
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.log.Info("reachability changed", logger.Fields("from", prev.String(), logger.FieldReachability, status.String()))
	for _, s := range subs {
		if s.listener != nil {
			s.listener.ReachabilityChanged(m, status)
		} else {
			s.fn(status)
		}
	}
}
