// Package inference defines the Provider contract and the Inference
// Strategy Manager: a preference-ordered dispatcher across providers with
// per-rule override and fallback.
package inference

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/telemetry"
)

// Provider is the common contract every inference implementation (CLI
// subprocess, HTTP API, rule-based fallback) satisfies.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error)
	HealthCheck(ctx context.Context) ProviderHealth
}

// ProviderHealth is one provider's self-reported status.
type ProviderHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthSummary aggregates every provider's health into one fan-out result.
type HealthSummary struct {
	Providers     []ProviderHealth `json:"providers"`
	Total         int              `json:"total"`
	Healthy       int              `json:"healthy"`
	OverallHealth bool             `json:"overall_healthy"`
}

// Manager holds a registry of providers and a default preference order,
// dispatching an evaluation across them with per-rule override and
// fallback on failure.
type Manager struct {
	logger     *slog.Logger
	providers  map[string]Provider
	preference []string
}

// NewManager constructs a Manager. preference lists provider names in the
// default dispatch order; providers not named in preference are still
// registered and reachable via a rule's explicit InferenceProvider override,
// but are never tried unless named there.
func NewManager(logger *slog.Logger, providers []Provider, preference []string) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	reg := make(map[string]Provider, len(providers))
	for _, p := range providers {
		reg[p.Name()] = p
	}
	return &Manager{logger: logger, providers: reg, preference: preference}
}

// order builds the provider dispatch order for one evaluation: the rule's
// preferred provider first (if set and known), then the default preference
// list with that name removed.
func (m *Manager) order(preferred string) []string {
	order := make([]string, 0, len(m.preference)+1)
	seen := map[string]struct{}{}
	if preferred != "" {
		if _, ok := m.providers[preferred]; ok {
			order = append(order, preferred)
			seen[preferred] = struct{}{}
		}
	}
	for _, name := range m.preference {
		if _, dup := seen[name]; dup {
			continue
		}
		if _, ok := m.providers[name]; ok {
			order = append(order, name)
			seen[name] = struct{}{}
		}
	}
	return order
}

// Evaluate dispatches req across providers in preference order (with the
// rule's preferred provider, if any, tried first), returning the first
// success. If every provider fails, it returns AIServiceUnavailable wrapping
// the last error.
func (m *Manager) Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	order := m.order(req.Provider)
	if len(order) == 0 {
		return decision.InferenceDecision{}, decision.Wrapf(decision.KindAIServiceUnavailable, "no inference providers configured")
	}

	var lastErr error
	for _, name := range order {
		provider := m.providers[name]
		result, err := m.dispatch(ctx, provider, name, req)
		if err == nil {
			return result, nil
		}
		m.logger.Warn("inference provider failed, trying next", "provider", name, "error", err)
		lastErr = err
	}
	return decision.InferenceDecision{}, decision.Wrap(decision.KindAIServiceUnavailable, fmt.Errorf("all inference providers failed: %w", lastErr))
}

// dispatch wraps one provider attempt in a span tagged with the provider
// name and tool, so a trace shows exactly which providers were tried and in
// what order for a given evaluation.
func (m *Manager) dispatch(ctx context.Context, provider Provider, name string, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inference.Manager.dispatch",
		trace.WithAttributes(
			attribute.String("inference.provider", name),
			attribute.String("inference.tool_name", req.ToolName),
		),
	)
	defer span.End()
	return provider.Evaluate(ctx, req)
}

// HealthCheck fans out across every registered provider.
func (m *Manager) HealthCheck(ctx context.Context) HealthSummary {
	summary := HealthSummary{}
	for _, p := range m.providers {
		h := p.HealthCheck(ctx)
		summary.Providers = append(summary.Providers, h)
		summary.Total++
		if h.Healthy {
			summary.Healthy++
		}
	}
	summary.OverallHealth = summary.Total > 0 && summary.Healthy == summary.Total
	return summary
}
