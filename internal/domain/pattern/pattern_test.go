package pattern

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/toolsentry/toolsentry/internal/domain/request"
)

func newTestEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
}

func TestMatchRegex(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"case insensitive", "rm -rf", "sudo RM -RF /", true},
		{"search not fullmatch", "passwd", "/etc/passwd/shadow", true},
		{"no match", "foo", "bar", false},
		{"overlong pattern rejected", strings.Repeat("a", 1001), "aaa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.MatchRegex(tt.pattern, tt.value); got != tt.want {
				t.Errorf("MatchRegex(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
			}
		})
	}
}

func TestMatchRegexInvalidNeverPanics(t *testing.T) {
	e := newTestEngine()
	if e.MatchRegex("(unterminated", "anything") {
		t.Fatal("expected false for invalid regex, got true")
	}
}

func TestMatchGlob(t *testing.T) {
	e := newTestEngine()
	if !e.MatchGlob("/etc/*", "/etc/passwd") {
		t.Error("expected glob match")
	}
	if e.MatchGlob("/etc/*", "/home/user") {
		t.Error("expected glob non-match")
	}
}

func TestMatchJSONPathExists(t *testing.T) {
	e := newTestEngine()
	data := map[string]any{"command": "rm -rf /"}
	if !e.MatchJSONPath("$.command", data, nil, CompareExists) {
		t.Error("expected jsonpath exists match")
	}
	if e.MatchJSONPath("$.missing", data, nil, CompareExists) {
		t.Error("expected jsonpath non-match on missing field")
	}
}

func TestMatchJSONPathNumericComparison(t *testing.T) {
	e := newTestEngine()
	data := map[string]any{"size": float64(500)}
	if !e.MatchJSONPath("$.size", data, float64(100), CompareGT) {
		t.Error("expected gt comparison to match")
	}
	if e.MatchJSONPath("$.size", data, float64(1000), CompareGT) {
		t.Error("expected gt comparison to fail")
	}
}

func TestValidatePatternCompilesWithoutExecuting(t *testing.T) {
	e := newTestEngine()
	valid := NewConfig(map[string]any{"type": "regex", "pattern": "^abc$"})
	if !e.ValidatePattern(valid) {
		t.Error("expected valid regex pattern to validate")
	}
	invalid := NewConfig(map[string]any{"type": "regex", "pattern": "(unterminated"})
	if e.ValidatePattern(invalid) {
		t.Error("expected invalid regex pattern to fail validation")
	}
	str := NewConfig("literal")
	if !e.ValidatePattern(str) {
		t.Error("expected bare string pattern to always validate")
	}
}

func TestMatchCompositeDirectKeysImplicitAND(t *testing.T) {
	e := newTestEngine()
	conditions := map[string]any{
		"tool_name": "Bash",
		"parameters": map[string]any{
			"command": map[string]any{"type": "regex", "pattern": "rm -rf"},
		},
	}
	matchReq := request.ToolRequest{ToolName: "Bash", Parameters: map[string]any{"command": "rm -rf /"}}
	if !e.MatchComposite(conditions, matchReq) {
		t.Error("expected composite match")
	}
	nonMatchReq := request.ToolRequest{ToolName: "Bash", Parameters: map[string]any{"command": "ls -la"}}
	if e.MatchComposite(conditions, nonMatchReq) {
		t.Error("expected composite non-match")
	}
}

func TestMatchCompositeOR(t *testing.T) {
	e := newTestEngine()
	conditions := map[string]any{
		"OR": []any{
			map[string]any{"tool_name": "Write"},
			map[string]any{"tool_name": "Edit"},
		},
	}
	if !e.MatchComposite(conditions, request.ToolRequest{ToolName: "Edit"}) {
		t.Error("expected OR match")
	}
	if e.MatchComposite(conditions, request.ToolRequest{ToolName: "Bash"}) {
		t.Error("expected OR non-match")
	}
}

func TestMatchCompositeToolNameList(t *testing.T) {
	e := newTestEngine()
	conditions := map[string]any{"tool_name": []any{"Bash", "Write"}}
	if !e.MatchComposite(conditions, request.ToolRequest{ToolName: "Write"}) {
		t.Error("expected list membership match")
	}
	if e.MatchComposite(conditions, request.ToolRequest{ToolName: "Read"}) {
		t.Error("expected list membership non-match")
	}
}

func TestMatchCompositeCwdPatternLegacyIsRegex(t *testing.T) {
	e := newTestEngine()
	conditions := map[string]any{"cwd_pattern": "^/etc"}
	if !e.MatchComposite(conditions, request.ToolRequest{Cwd: "/etc/app"}) {
		t.Error("expected cwd_pattern regex match")
	}
}

func TestMatchTimeRangeWraparound(t *testing.T) {
	e := newTestEngine()
	// Bounds are inclusive at minute resolution, so the complement of the
	// wrapping window 22:00-06:00 is 06:01-21:59. "Now" falls in exactly one
	// of them; assert the wraparound branch doesn't panic and is internally
	// consistent (exactly one of the window or its complement matches).
	cfg := map[string]any{"start": "22:00", "end": "06:00", "timezone": "UTC"}
	complement := map[string]any{"start": "06:01", "end": "21:59", "timezone": "UTC"}
	inWindow := e.matchTimeRange(cfg)
	inComplement := e.matchTimeRange(complement)
	if inWindow == inComplement {
		t.Errorf("expected exactly one of window/complement to match, got %v and %v", inWindow, inComplement)
	}
}

func TestMatchTimeRangeBadTimezoneFailsClosed(t *testing.T) {
	e := newTestEngine()
	if e.matchTimeRange(map[string]any{"start": "00:00", "end": "23:59", "timezone": "Not/AZone"}) {
		t.Error("expected bad timezone to fail the predicate, not panic or match")
	}
}
