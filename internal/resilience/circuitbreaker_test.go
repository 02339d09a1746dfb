package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingCalls(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", FailureThreshold: 3})

	failingCalls(cb, 2)
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", FailureThreshold: 3, Cooldown: time.Minute})

	failingCalls(cb, 3)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	err := cb.Execute(func() error {
		t.Fatal("open breaker must not call fn")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", FailureThreshold: 3})

	failingCalls(cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	failingCalls(cb, 2)

	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		ProbeBudget:      2,
	})

	failingCalls(cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", got)
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestProbeFailureReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		ProbeBudget:      3,
	})

	failingCalls(cb, 1)
	time.Sleep(20 * time.Millisecond)

	failingCalls(cb, 1)
	err := cb.Execute(func() error {
		t.Fatal("re-opened breaker must not call fn")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", FailureThreshold: 1, Cooldown: time.Minute})

	failingCalls(cb, 1)
	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Errorf("state after reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after reset: %v", err)
	}
}
