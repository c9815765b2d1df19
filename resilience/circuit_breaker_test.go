package resilience

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/restkit/errors"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: maxFailures, Timeout: time.Minute})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil || !called {
		t.Errorf("expected call to pass, err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_OpensOnTransportFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.ConnectionFailed("api", nil) })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	err := cb.Execute(func() error {
		t.Error("function should not run while open")
		return nil
	})
	if !stderrors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_ServerAnswersDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(2)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errors.ObjectNotFound("user", "1") })
	}
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("non-transport errors must not count, state=%s failures=%d", cb.State(), cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(1)
	cb.config.OnStateChange = func(_ string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	_ = cb.Execute(func() error { return errors.Timeout("x") })
	clock.now = clock.now.Add(time.Minute)

	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected a probe call in half-open")
	}
	if cb.Allow() {
		t.Error("only one probe call allowed in half-open")
	}
	cb.Record(nil)
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: want %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	_ = cb.Execute(func() error { return errors.Timeout("x") })
	clock.now = clock.now.Add(time.Minute)

	_ = cb.Execute(func() error { return errors.InternetConnectionLost(nil) })
	if cb.State() != StateOpen {
		t.Errorf("expected open after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_CallAndReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	v, err := Call(cb, func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("expected 7, got %d, %v", v, err)
	}
	_, _ = Call(cb, func() (int, error) { return 0, errors.Timeout("x") })
	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("expected reset to closed, got %s/%d", cb.State(), cb.Failures())
	}
}
