package resilience

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBreakerExecutePassesThroughSuccess(t *testing.T) {
	b := NewCircuitBreaker("test", 5, 30*time.Second, testLogger())
	want := decision.InferenceDecision{Action: decision.Allow, Reason: "ok"}
	got, err := b.Execute(func() (decision.InferenceDecision, error) { return want, nil })
	if err != nil || got.Reason != "ok" {
		t.Fatalf("expected passthrough success, got %+v err=%v", got, err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker("test", 2, time.Minute, testLogger())
	failFn := func() (decision.InferenceDecision, error) {
		return decision.InferenceDecision{}, errors.New("boom")
	}
	for i := 0; i < 2; i++ {
		if _, err := b.Execute(failFn); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}

	_, err := b.Execute(func() (decision.InferenceDecision, error) {
		t.Fatal("fn must not be invoked while breaker is open")
		return decision.InferenceDecision{}, nil
	})
	if !errors.Is(err, decision.ErrCircuitOpen) {
		t.Fatalf("expected CircuitOpen, got %v", err)
	}
}

func TestBreakerStateSnapshot(t *testing.T) {
	b := NewCircuitBreaker("test", 5, 30*time.Second, testLogger())
	snap := b.State()
	if snap.State != "closed" {
		t.Fatalf("expected initial state closed, got %q", snap.State)
	}
	if snap.Threshold != 5 {
		t.Errorf("Threshold = %d, want 5", snap.Threshold)
	}
	if snap.RecoveryTimeout != (30 * time.Second).String() {
		t.Errorf("RecoveryTimeout = %q, want %q", snap.RecoveryTimeout, (30 * time.Second).String())
	}
	if !snap.LastFailureTime.IsZero() {
		t.Errorf("LastFailureTime = %v, want zero before any failure", snap.LastFailureTime)
	}

	before := time.Now()
	if _, err := b.Execute(func() (decision.InferenceDecision, error) {
		return decision.InferenceDecision{}, errors.New("boom")
	}); err == nil {
		t.Fatal("expected failure to propagate")
	}

	snap = b.State()
	if snap.LastFailureTime.Before(before) {
		t.Errorf("LastFailureTime = %v, want at or after %v", snap.LastFailureTime, before)
	}
}
