package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toolsentry/toolsentry/internal/domain/audit"
	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/request"
	"github.com/toolsentry/toolsentry/internal/metrics"
	"github.com/toolsentry/toolsentry/internal/service"
	"github.com/toolsentry/toolsentry/internal/telemetry"
)

type handlers struct {
	svc     *service.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
	version string
}

// hookRequest is the bit-exact Claude Code PreToolUse hook wire format.
type hookRequest struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path"`
	Cwd            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	ToolName       string         `json:"tool_name" binding:"required"`
	ToolInput      map[string]any `json:"tool_input"`
}

type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

type hookResponse struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
	Decision           string             `json:"decision"`
	Reason             string             `json:"reason"`
}

// permissionDecision derives the hook wire format's two redundant decision
// fields from one Decision so they always agree — they are never set
// independently. decision.Decision's Action is constructed as Allow or Deny
// only; a sample rule is always resolved to Allow or Deny by the Policy
// Engine before a Decision is returned, so an "ask" outcome never reaches
// this mapping.
func permissionDecision(d decision.Decision, hookEventName string) hookResponse {
	resp := hookResponse{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:            hookEventName,
			PermissionDecisionReason: d.Reason,
		},
		Reason: d.Reason,
	}
	switch d.Action {
	case decision.Deny:
		resp.HookSpecificOutput.PermissionDecision = "deny"
		resp.Decision = "block"
	default:
		resp.HookSpecificOutput.PermissionDecision = "allow"
		resp.Decision = "approve"
	}
	return resp
}

func (h *handlers) hook(c *gin.Context) {
	var in hookRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.HookEventName == "" {
		in.HookEventName = "PreToolUse"
	}

	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "policyengine.Evaluate")
	defer span.End()

	req := request.New(in.ToolName, in.ToolInput, in.SessionID, "", in.Cwd)
	d := h.svc.Engine.Evaluate(ctx, req)
	h.metrics.EvaluationsTotal.WithLabelValues(string(d.Action)).Inc()
	c.JSON(http.StatusOK, permissionDecision(d, in.HookEventName))
}

// evaluateRequest is the native request/Decision surface at
// POST /v1/evaluate.
type evaluateRequest struct {
	ToolName   string         `json:"tool_name" binding:"required"`
	Parameters map[string]any `json:"parameters"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	Cwd        string         `json:"cwd"`
}

func (h *handlers) evaluate(c *gin.Context) {
	var in evaluateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "policyengine.Evaluate")
	defer span.End()

	req := request.New(in.ToolName, in.Parameters, in.SessionID, in.AgentID, in.Cwd)
	d := h.svc.Engine.Evaluate(ctx, req)
	h.metrics.EvaluationsTotal.WithLabelValues(string(d.Action)).Inc()
	c.JSON(http.StatusOK, d)
}

// healthResponse aggregates Rule Store freshness, Circuit Breaker state,
// Request Queue depth, and Inference Manager provider health into one body.
type healthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version,omitempty"`
	RulesLoadedAt  time.Time `json:"rules_loaded_at"`
	RuleCount      int       `json:"rule_count"`
	CircuitBreaker any       `json:"circuit_breaker"`
	Queue          any       `json:"queue,omitempty"`
	Inference      any       `json:"inference"`
}

func (h *handlers) health(c *gin.Context) {
	breakerState := h.svc.Breaker.State()
	inferenceHealth := h.svc.Manager.HealthCheck(c.Request.Context())

	resp := healthResponse{
		Status:         "healthy",
		Version:        h.version,
		RulesLoadedAt:  h.svc.Rules.LoadedAt(),
		RuleCount:      h.svc.Rules.Snapshot().Len(),
		CircuitBreaker: breakerState,
		Inference:      inferenceHealth,
	}
	if stats, ok := h.svc.QueueStats(); ok {
		resp.Queue = stats
	}
	if breakerState.State == "open" || !inferenceHealth.OverallHealth {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *handlers) rules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.svc.Rules.GetAll()})
}

func (h *handlers) auditRecent(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var entries []audit.Entry
	if tool := c.Query("tool_name"); tool != "" {
		entries = h.svc.Auditor.Query(audit.Filter{ToolName: tool, Limit: limit})
	} else {
		entries = h.svc.Auditor.Recent(limit)
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
