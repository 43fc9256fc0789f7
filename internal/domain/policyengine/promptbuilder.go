package policyengine

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/request"
	"github.com/toolsentry/toolsentry/internal/domain/rule"
)

// PromptBuilder renders the fixed-structure prompt handed to inference
// providers when a rule's action is "sample". Tool name is re-validated
// here (a tool name is an identifier, not a string payload) and Build fails
// loudly on a bad one rather than silently passing it through.
type PromptBuilder struct{}

// NewPromptBuilder constructs a PromptBuilder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build renders the prompt for req evaluated against matchedRule.
func (b *PromptBuilder) Build(req request.ToolRequest, matchedRule rule.SecurityRule) (string, error) {
	if !request.ValidToolName(req.ToolName) {
		return "", fmt.Errorf("prompt builder: tool name %q is not a valid identifier", req.ToolName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool: %s\n", html.EscapeString(req.ToolName))
	fmt.Fprintf(&sb, "Parameters:\n%s", renderParams(req.Parameters, 1))
	fmt.Fprintf(&sb, "Working directory: %s\n", html.EscapeString(escapeControl(req.Cwd)))
	fmt.Fprintf(&sb, "Agent: %s\n", html.EscapeString(escapeControl(req.AgentID)))
	fmt.Fprintf(&sb, "Session: %s\n", html.EscapeString(escapeControl(req.SessionID)))
	fmt.Fprintf(&sb, "Rule: %s\n", html.EscapeString(matchedRule.ID))
	if matchedRule.SamplingGuidance != "" {
		fmt.Fprintf(&sb, "Guidance: %s\n", html.EscapeString(escapeControl(matchedRule.SamplingGuidance)))
	}
	fmt.Fprintf(&sb, "Timestamp: %s\n", req.Timestamp.Format(time.RFC3339))
	sb.WriteString("\nDetermine whether this tool call should be allowed. Respond with DECISION: allow or DECISION: deny, REASON: <text>, CONFIDENCE: <0-1>.\n")
	return sb.String(), nil
}

func renderParams(params map[string]any, depth int) string {
	if len(params) == 0 {
		return strings.Repeat("  ", depth) + "(none)\n"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	indent := strings.Repeat("  ", depth)
	for _, k := range keys {
		sanitizedKey := request.SanitizeKey(k)
		v := params[k]
		switch val := v.(type) {
		case map[string]any:
			fmt.Fprintf(&sb, "%s%s:\n%s", indent, html.EscapeString(sanitizedKey), renderParams(val, depth+1))
		default:
			fmt.Fprintf(&sb, "%s%s: %s\n", indent, html.EscapeString(sanitizedKey), html.EscapeString(escapeControl(fmt.Sprintf("%v", val))))
		}
	}
	return sb.String()
}

func escapeControl(s string) string {
	return request.SanitizeString(s)
}
