package resilience

import (
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	name  string
	err   error
	calls int
}

func TestFallbackPrefersPrimary(t *testing.T) {
	t.Parallel()
	primary := &fakeBackend{name: "primary"}
	backup := &fakeBackend{name: "backup"}

	fg := NewFallbackGroup(primary, "primary", FallbackConfig{})
	fg.AddFallback("backup", backup)

	err := fg.Execute(func(b *fakeBackend) error {
		b.calls++
		return b.err
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if primary.calls != 1 || backup.calls != 0 {
		t.Errorf("calls = (%d, %d), want (1, 0)", primary.calls, backup.calls)
	}
}

func TestFallbackTriesNextOnFailure(t *testing.T) {
	t.Parallel()
	primary := &fakeBackend{name: "primary", err: errBoom}
	backup := &fakeBackend{name: "backup"}

	fg := NewFallbackGroup(primary, "primary", FallbackConfig{})
	fg.AddFallback("backup", backup)

	got, err := ExecuteWithResult(fg, func(b *fakeBackend) (string, error) {
		b.calls++
		return b.name, b.err
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "backup" {
		t.Errorf("result = %q, want %q", got, "backup")
	}
}

func TestFallbackAllFailed(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(&fakeBackend{err: errBoom}, "primary", FallbackConfig{})
	fg.AddFallback("backup", &fakeBackend{err: errBoom})

	err := fg.Execute(func(b *fakeBackend) error { return b.err })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackSkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	primary := &fakeBackend{name: "primary", err: errBoom}
	backup := &fakeBackend{name: "backup"}

	fg := NewFallbackGroup(primary, "primary", FallbackConfig{
		CircuitBreaker: BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute},
	})
	fg.AddFallback("backup", backup)

	// First pass trips the primary's breaker.
	if err := fg.Execute(func(b *fakeBackend) error { b.calls++; return b.err }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Second pass must skip the primary entirely.
	if err := fg.Execute(func(b *fakeBackend) error { b.calls++; return b.err }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if backup.calls != 2 {
		t.Errorf("backup calls = %d, want 2", backup.calls)
	}
}
