// Package decision defines the Decision value object returned by the Policy
// Engine, the internal InferenceRequest/InferenceDecision contract exchanged
// with providers, and the engine's error taxonomy.
package decision

import "time"

// Action is the externally observable verdict. "sample" never appears here;
// it is always resolved to Allow or Deny before a Decision is constructed.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// Decision is the Policy Engine's output for one evaluation.
type Decision struct {
	Action           Action   `json:"action"`
	Reason           string   `json:"reason"`
	RuleID           *string  `json:"rule_id"`
	Confidence       float64  `json:"confidence"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	RiskFactors      []string `json:"risk_factors,omitempty"`
	AIProvider       *string  `json:"ai_provider"`
	AIModel          *string  `json:"ai_model"`
}

// ClampProcessingTime enforces the ≥1ms floor invariant.
func ClampProcessingTime(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

// InferenceRequest is the internal analog of ToolRequest passed from the
// Policy Engine to an inference provider, carrying the rendered prompt and
// the cache key the resulting decision will be stored under.
type InferenceRequest struct {
	ToolName  string
	Prompt    string
	CacheKey  string
	Timeout   time.Duration
	Provider  string // preferred provider name, may be empty
}

// InferenceDecision is a provider's verdict, before translation into a
// Decision by the Policy Engine.
type InferenceDecision struct {
	Action          Action
	Reason          string
	Confidence      float64
	RiskFactors     []string
	Provider        string
	Model           string
	ResponseTimeMS  int64
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringPtr exposes the nil-on-empty pointer helper for adapters building a
// Decision.
func StringPtr(s string) *string { return strPtr(s) }
