package providers

import (
	"context"
	"strings"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/inference"
)

// DefaultDangerousPatterns are the built-in, case-insensitive substrings
// that deny at high confidence regardless of rule configuration.
var DefaultDangerousPatterns = []string{
	"rm -rf", "/etc/passwd", "sudo rm", "chmod 777", "dd if=", "mkfs",
}

// DefaultProtectedPathPrefixes deny at moderate confidence when present in
// the evaluated blob but no dangerous pattern matched.
var DefaultProtectedPathPrefixes = []string{
	"/etc/", "/boot/", `C:\Windows\`,
}

// FallbackProvider is the offline, rule-only predictor used for tests and
// standalone CLI mode when no AI provider is reachable. It never performs
// I/O and never fails.
type FallbackProvider struct {
	name            string
	dangerous       []string
	protectedPaths  []string
}

// NewFallbackProvider constructs a FallbackProvider. Empty slices fall back
// to the built-in defaults.
func NewFallbackProvider(name string, dangerousPatterns, protectedPathPrefixes []string) *FallbackProvider {
	if len(dangerousPatterns) == 0 {
		dangerousPatterns = DefaultDangerousPatterns
	}
	if len(protectedPathPrefixes) == 0 {
		protectedPathPrefixes = DefaultProtectedPathPrefixes
	}
	return &FallbackProvider{name: name, dangerous: dangerousPatterns, protectedPaths: protectedPathPrefixes}
}

func (p *FallbackProvider) Name() string { return p.name }

// Evaluate concatenates prompt|tool_name into a single searchable blob and
// classifies it by substring membership, per §4.7.3. Parameters are not
// appended separately; they are searched only as rendered in the prompt.
func (p *FallbackProvider) Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	start := time.Now()
	blob := strings.ToLower(req.Prompt + " | " + req.ToolName)

	for _, pattern := range p.dangerous {
		if strings.Contains(blob, strings.ToLower(pattern)) {
			return decision.InferenceDecision{
				Action:         decision.Deny,
				Confidence:     0.9,
				Reason:         "matched dangerous pattern: " + pattern,
				RiskFactors:    []string{"dangerous_command", "security_risk"},
				Provider:       "mock_inference",
				Model:          "pattern-matcher-v1",
				ResponseTimeMS: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	for _, prefix := range p.protectedPaths {
		if strings.Contains(blob, strings.ToLower(prefix)) {
			return decision.InferenceDecision{
				Action:         decision.Deny,
				Confidence:     0.8,
				Reason:         "references protected path: " + prefix,
				RiskFactors:    []string{"protected_path_access", "system_modification"},
				Provider:       "mock_inference",
				Model:          "pattern-matcher-v1",
				ResponseTimeMS: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	return decision.InferenceDecision{
		Action:         decision.Allow,
		Confidence:     0.7,
		Reason:         "no dangerous pattern or protected path matched",
		Provider:       "mock_inference",
		Model:          "pattern-matcher-v1",
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// HealthCheck always reports healthy: this provider performs no I/O.
func (p *FallbackProvider) HealthCheck(ctx context.Context) inference.ProviderHealth {
	return inference.ProviderHealth{Name: p.name, Healthy: true}
}

var _ inference.Provider = (*FallbackProvider)(nil)
