// Package rule defines the SecurityRule value object and the RuleSet
// snapshot type the Rule Store publishes atomically.
package rule

import (
	"fmt"
	"sort"
)

// Action is what a matched rule prescribes.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionDeny   Action = "deny"
	ActionSample Action = "sample"
)

// recognizedConditionKeys are the only top-level keys a rule's conditions
// map may be judged valid by; at least one must be present.
var recognizedConditionKeys = map[string]struct{}{
	"tool_name":   {},
	"parameters":  {},
	"cwd":         {},
	"cwd_pattern": {},
	"time_range":  {},
	"AND":         {},
	"OR":          {},
}

// SecurityRule is immutable once loaded from the Rule Store.
type SecurityRule struct {
	ID                string         `yaml:"id" json:"id"`
	Priority          int            `yaml:"priority" json:"priority"`
	Enabled           bool           `yaml:"enabled" json:"enabled"`
	Conditions        map[string]any `yaml:"conditions" json:"conditions"`
	Action            Action         `yaml:"action" json:"action"`
	Reason            string         `yaml:"reason" json:"reason,omitempty"`
	SamplingGuidance  string         `yaml:"sampling_guidance" json:"sampling_guidance,omitempty"`
	InferenceProvider string         `yaml:"inference_provider" json:"inference_provider,omitempty"`
}

// Validate checks the structural invariants a SecurityRule must satisfy
// independent of the file it was loaded from: a non-empty id, a priority in
// [0,999], a recognized action, and at least one recognized condition key.
func (r SecurityRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule: id is required")
	}
	if r.Priority < 0 || r.Priority > 999 {
		return fmt.Errorf("rule %s: priority must be in [0,999], got %d", r.ID, r.Priority)
	}
	switch r.Action {
	case ActionAllow, ActionDeny, ActionSample:
	default:
		return fmt.Errorf("rule %s: action must be allow|deny|sample, got %q", r.ID, r.Action)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: conditions must contain at least one recognized key", r.ID)
	}
	found := false
	for k := range r.Conditions {
		if _, ok := recognizedConditionKeys[k]; ok {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("rule %s: conditions has no recognized predicate key", r.ID)
	}
	return nil
}

// Set is an immutable, priority-sorted snapshot of the active rules, the
// unit the Rule Store publishes atomically. Readers that acquire a Set see
// a stable view even if a reload swaps in a new one concurrently.
type Set struct {
	rules []SecurityRule
}

// NewSet sorts rules by priority ascending (stable) and returns the
// resulting snapshot. The input slice is copied; callers may reuse it.
func NewSet(rules []SecurityRule) Set {
	sorted := make([]SecurityRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return Set{rules: sorted}
}

// All returns every rule in priority order, enabled or not.
func (s Set) All() []SecurityRule {
	out := make([]SecurityRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Active returns only enabled rules, in priority order.
func (s Set) Active() []SecurityRule {
	out := make([]SecurityRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// ByID returns the rule with the given id, if any.
func (s Set) ByID(id string) (SecurityRule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return SecurityRule{}, false
}

// Len reports how many rules are in the snapshot.
func (s Set) Len() int { return len(s.rules) }
