package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
)

type fakeProvider struct {
	name   string
	result decision.InferenceDecision
	err    error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	return f.result, f.err
}

func (f *fakeProvider) HealthCheck(ctx context.Context) ProviderHealth {
	return ProviderHealth{Name: f.name, Healthy: f.err == nil}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestManager_Evaluate_NoProvidersConfigured(t *testing.T) {
	m := NewManager(testLogger(), nil, nil)
	_, err := m.Evaluate(context.Background(), decision.InferenceRequest{ToolName: "Bash"})
	if err == nil {
		t.Fatal("expected error when no providers are registered")
	}
}

func TestManager_Evaluate_UsesDefaultPreferenceOrder(t *testing.T) {
	claude := &fakeProvider{name: "claude", result: decision.InferenceDecision{Action: decision.Allow, Provider: "claude"}}
	openai := &fakeProvider{name: "openai", result: decision.InferenceDecision{Action: decision.Deny, Provider: "openai"}}

	m := NewManager(testLogger(), []Provider{openai, claude}, []string{"claude", "openai"})
	result, err := m.Evaluate(context.Background(), decision.InferenceRequest{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "claude" {
		t.Errorf("provider = %q, want claude (first in preference order)", result.Provider)
	}
}

func TestManager_Evaluate_FallsBackOnProviderError(t *testing.T) {
	claude := &fakeProvider{name: "claude", err: errors.New("unreachable")}
	openai := &fakeProvider{name: "openai", result: decision.InferenceDecision{Action: decision.Allow, Provider: "openai"}}

	m := NewManager(testLogger(), []Provider{claude, openai}, []string{"claude", "openai"})
	result, err := m.Evaluate(context.Background(), decision.InferenceRequest{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("provider = %q, want openai (fallback after claude failed)", result.Provider)
	}
}

func TestManager_Evaluate_AllProvidersFailReturnsServiceUnavailable(t *testing.T) {
	claude := &fakeProvider{name: "claude", err: errors.New("down")}
	openai := &fakeProvider{name: "openai", err: errors.New("down")}

	m := NewManager(testLogger(), []Provider{claude, openai}, []string{"claude", "openai"})
	_, err := m.Evaluate(context.Background(), decision.InferenceRequest{ToolName: "Bash"})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	var engineErr *decision.EngineError
	if !errors.As(err, &engineErr) || engineErr.Kind != decision.KindAIServiceUnavailable {
		t.Errorf("err = %v, want KindAIServiceUnavailable", err)
	}
}

func TestManager_Evaluate_RulePreferredProviderTriedFirst(t *testing.T) {
	claude := &fakeProvider{name: "claude", result: decision.InferenceDecision{Action: decision.Allow, Provider: "claude"}}
	openai := &fakeProvider{name: "openai", result: decision.InferenceDecision{Action: decision.Deny, Provider: "openai"}}

	m := NewManager(testLogger(), []Provider{claude, openai}, []string{"claude", "openai"})
	result, err := m.Evaluate(context.Background(), decision.InferenceRequest{ToolName: "Bash", Provider: "openai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("provider = %q, want openai (explicit rule override)", result.Provider)
	}
}

func TestManager_HealthCheck_AggregatesAllProviders(t *testing.T) {
	claude := &fakeProvider{name: "claude"}
	openai := &fakeProvider{name: "openai", err: errors.New("down")}

	m := NewManager(testLogger(), []Provider{claude, openai}, nil)
	summary := m.HealthCheck(context.Background())
	if summary.Total != 2 || summary.Healthy != 1 {
		t.Errorf("summary = %+v, want Total=2 Healthy=1", summary)
	}
	if summary.OverallHealth {
		t.Error("OverallHealth should be false when any provider is unhealthy")
	}
}
