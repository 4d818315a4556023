package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	inner := &fakeSender{err: errors.New("sink down")}
	p := NewProtectedSender(inner, BreakerConfig{MaxFailures: 3, RecoveryTimeout: time.Hour}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Send(ctx, Email{To: "a@example.com"}); err == nil {
			t.Fatalf("send %d should fail", i)
		}
	}

	if p.State() != "open" {
		t.Fatalf("state = %s, want open", p.State())
	}

	err := p.Send(ctx, Email{To: "a@example.com"})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughProbe(t *testing.T) {
	inner := &fakeSender{err: errors.New("sink down")}
	p := NewProtectedSender(inner, BreakerConfig{MaxFailures: 1, RecoveryTimeout: time.Nanosecond}, zap.NewNop())
	ctx := context.Background()

	_ = p.Send(ctx, Email{To: "a@example.com"})
	if p.State() != "open" {
		t.Fatalf("state = %s, want open", p.State())
	}

	time.Sleep(time.Millisecond)

	// Sink recovered; probe should pass and close the circuit.
	inner.err = nil
	if err := p.Send(ctx, Email{To: "a@example.com"}); err != nil {
		t.Fatalf("probe send failed: %v", err)
	}
	if p.State() != "closed" {
		t.Errorf("state = %s, want closed", p.State())
	}
	if len(inner.sent) != 1 {
		t.Errorf("expected 1 delivered email, got %d", len(inner.sent))
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	inner := &fakeSender{}
	p := NewProtectedSender(inner, BreakerConfig{MaxFailures: 2, RecoveryTimeout: time.Hour}, zap.NewNop())
	ctx := context.Background()

	inner.err = errors.New("flaky")
	_ = p.Send(ctx, Email{})
	inner.err = nil
	_ = p.Send(ctx, Email{})
	inner.err = errors.New("flaky")
	_ = p.Send(ctx, Email{})

	if p.State() != "closed" {
		t.Errorf("non-consecutive failures should not open the circuit, state = %s", p.State())
	}
}
