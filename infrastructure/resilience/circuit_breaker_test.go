package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// These scenarios mirror the only circuit breaker consumer in the tree:
// core/scheduler.Facade.acquireLease, which wraps a Redis SETNX call.
var errLeaseUnreachable = errors.New("redis: lease backend unreachable")

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error {
		return nil // successful SETNX
	})

	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveLeaseFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Second})

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() error {
			return errLeaseUnreachable
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("expected open after 3 consecutive lease failures, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeoutRecoversOnLeaseSuccess(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})

	cb.Execute(context.Background(), func() error {
		return errLeaseUnreachable
	})

	time.Sleep(20 * time.Millisecond)

	// Need HalfOpenMax successful probes to close again.
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error {
			return nil
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probes, got %v", cb.State())
	}
}

func TestCircuitBreaker_RejectsLeaseAttemptsWhileOpen(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Hour})

	cb.Execute(context.Background(), func() error {
		return errLeaseUnreachable
	})

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}
