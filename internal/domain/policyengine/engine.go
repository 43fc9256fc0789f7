// Package policyengine implements the Policy Engine orchestrator: the
// public Evaluate entry point that ties together the Rule Store, Pattern
// Engine, Response Cache, Circuit Breaker, Request Queue, and Inference
// Manager.
//
// Per the cyclic-dependency-breaking design note, the Engine depends only on
// the small port interfaces below; concrete cache/breaker/queue/rule-store
// implementations are injected at construction, never imported transitively.
package policyengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/audit"
	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/pattern"
	"github.com/toolsentry/toolsentry/internal/domain/request"
	"github.com/toolsentry/toolsentry/internal/domain/rule"

	"github.com/google/uuid"
)

// RuleSource publishes the currently active rule snapshot. Implemented by
// the outbound Rule Store adapter.
type RuleSource interface {
	Snapshot() rule.Set
}

// Cache is the Response Cache port.
type Cache interface {
	Get(key string) (decision.Decision, bool)
	Set(key string, d decision.Decision, ttl time.Duration)
}

// InferenceDispatcher is satisfied by the Inference Strategy Manager.
type InferenceDispatcher interface {
	Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error)
}

// CircuitBreaker wraps a single outbound call with failure-counting
// open/closed/half-open state. Implemented by the gobreaker-backed adapter.
type CircuitBreaker interface {
	Execute(fn func() (decision.InferenceDecision, error)) (decision.InferenceDecision, error)
}

// Queue optionally serializes inference dispatch through a bounded priority
// queue with backpressure. Implemented by the Request Queue adapter.
type Queue interface {
	Submit(ctx context.Context, priority Priority, fn func(ctx context.Context) (decision.InferenceDecision, error)) (decision.InferenceDecision, error)
}

// Priority is the Request Queue's ordering key.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Config bounds Engine behavior.
type Config struct {
	// TotalDeadline bounds every evaluation; default 30s.
	TotalDeadline time.Duration
	// CacheTTL is the Response Cache entry lifetime.
	CacheTTL time.Duration
}

// Engine is the Policy Engine orchestrator.
type Engine struct {
	logger  *slog.Logger
	rules   RuleSource
	pattern *pattern.Engine
	cache   Cache
	breaker CircuitBreaker
	queue   Queue // may be nil: dispatch bypasses the queue directly to the breaker
	infer   InferenceDispatcher
	prompts *PromptBuilder
	auditor audit.Store
	cfg     Config
}

// New constructs a Policy Engine from already-built components — per the
// design note collapsing the source's multiple "either constructor"
// patterns into one constructor taking an assembled engine's dependencies.
func New(
	logger *slog.Logger,
	rules RuleSource,
	patternEngine *pattern.Engine,
	cache Cache,
	breaker CircuitBreaker,
	queue Queue,
	infer InferenceDispatcher,
	auditor audit.Store,
	cfg Config,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TotalDeadline == 0 {
		cfg.TotalDeadline = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		logger:  logger,
		rules:   rules,
		pattern: patternEngine,
		cache:   cache,
		breaker: breaker,
		queue:   queue,
		infer:   infer,
		prompts: NewPromptBuilder(),
		auditor: auditor,
		cfg:     cfg,
	}
}

// Fingerprint derives the Response Cache key from the tuple the cache is
// keyed by: tool_name, sorted(parameters), agent_id, cwd.
func Fingerprint(req request.ToolRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", req.ToolName)
	writeSortedParams(h, req.Parameters)
	fmt.Fprintf(h, "|%s|%s", req.AgentID, req.Cwd)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

func writeSortedParams(h io.Writer, params map[string]any) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, params[k])
	}
}

// Evaluate is the public entry point: §4.9 steps 1-7.
func (e *Engine) Evaluate(ctx context.Context, req request.ToolRequest) (result decision.Decision) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TotalDeadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("critical error in policy engine", "panic", r)
			result = decision.Decision{
				Action:           decision.Deny,
				Reason:           "Critical error in security hook",
				Confidence:       0.9,
				ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
			}
		}
	}()

	cacheKey := Fingerprint(req)
	if cached, ok := e.cache.Get(cacheKey); ok {
		cached.ProcessingTimeMS = decision.ClampProcessingTime(time.Since(start))
		return cached
	}

	d := e.evaluateUncached(ctx, req, cacheKey, start)
	e.cache.Set(cacheKey, d, e.cfg.CacheTTL)
	e.recordAudit(req, d)
	return d
}

func (e *Engine) evaluateUncached(ctx context.Context, req request.ToolRequest, cacheKey string, start time.Time) decision.Decision {
	matched, err := e.findMatchingRule(req)
	if err != nil {
		e.logger.Warn("rule evaluation failed, failing closed", "error", err)
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           "Rule evaluation failed — failing closed",
			Confidence:       0.8,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	}

	if matched == nil {
		return decision.Decision{
			Action:           decision.Allow,
			Reason:           "No security rules matched",
			Confidence:       0.5,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	}

	switch matched.Action {
	case rule.ActionAllow:
		return decision.Decision{
			Action:           decision.Allow,
			Reason:           ruleReason(*matched),
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       1.0,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	case rule.ActionDeny:
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           ruleReason(*matched),
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       1.0,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	case rule.ActionSample:
		return e.evaluateSample(ctx, req, *matched, cacheKey, start)
	default:
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           "Critical error in security hook",
			Confidence:       0.9,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	}
}

func ruleReason(r rule.SecurityRule) string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("Rule %s matched", r.ID)
}

func (e *Engine) findMatchingRule(req request.ToolRequest) (*rule.SecurityRule, error) {
	snapshot := e.rules.Snapshot()
	for _, r := range snapshot.Active() {
		if e.pattern.MatchComposite(r.Conditions, req) {
			matched := r
			return &matched, nil
		}
	}
	return nil, nil
}

func (e *Engine) evaluateSample(ctx context.Context, req request.ToolRequest, matched rule.SecurityRule, cacheKey string, start time.Time) decision.Decision {
	prompt, err := e.prompts.Build(req, matched)
	if err != nil {
		e.logger.Error("prompt build failed", "error", err)
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           "Critical error in security hook",
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       0.9,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	}

	infReq := decision.InferenceRequest{
		ToolName: req.ToolName,
		Prompt:   prompt,
		CacheKey: cacheKey,
		Timeout:  e.cfg.TotalDeadline,
		Provider: matched.InferenceProvider,
	}

	call := func() (decision.InferenceDecision, error) {
		if e.queue != nil {
			return e.queue.Submit(ctx, PriorityNormal, func(ctx context.Context) (decision.InferenceDecision, error) {
				return e.infer.Evaluate(ctx, infReq)
			})
		}
		return e.infer.Evaluate(ctx, infReq)
	}

	result, err := e.breaker.Execute(call)
	if err != nil {
		return e.translateInferenceError(err, matched, start)
	}

	return decision.Decision{
		Action:           result.Action,
		Reason:           result.Reason,
		RuleID:           decision.StringPtr(matched.ID),
		Confidence:       result.Confidence,
		RiskFactors:      result.RiskFactors,
		AIProvider:       decision.StringPtr(result.Provider),
		AIModel:          decision.StringPtr(result.Model),
		ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
	}
}

// translateInferenceError applies §4.9's fail-open/fail-closed table:
// unavailability (circuit open, all providers down, queue backpressure)
// fails open; a genuine timeout fails closed; anything else is an internal
// error, also closed.
func (e *Engine) translateInferenceError(err error, matched rule.SecurityRule, start time.Time) decision.Decision {
	switch {
	case isKind(err, decision.KindAIServiceTimeout):
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           "Inference request timed out",
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       0.8,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	case isKind(err, decision.KindCircuitOpen), isKind(err, decision.KindAIServiceUnavailable),
		isKind(err, decision.KindQueueFull), isKind(err, decision.KindEnqueueTimeout):
		return decision.Decision{
			Action:           decision.Allow,
			Reason:           fmt.Sprintf("Inference unavailable, failing open: %v", err),
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       0.3,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	default:
		return decision.Decision{
			Action:           decision.Deny,
			Reason:           "Critical error in security hook",
			RuleID:           decision.StringPtr(matched.ID),
			Confidence:       0.9,
			ProcessingTimeMS: decision.ClampProcessingTime(time.Since(start)),
		}
	}
}

func isKind(err error, kind decision.Kind) bool {
	return err != nil && errors.Is(err, &decision.EngineError{Kind: kind})
}

// recordAudit appends an audit entry; failures here are logged only, never
// surfaced to the caller — the audit trail is best-effort against the
// evaluation's own success.
func (e *Engine) recordAudit(req request.ToolRequest, d decision.Decision) {
	if e.auditor == nil {
		return
	}
	entry := audit.Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Request:   req,
		Decision:  d,
	}
	if d.RuleID != nil {
		entry.RuleMatches = []string{*d.RuleID}
	}
	e.auditor.Append(entry)
}
