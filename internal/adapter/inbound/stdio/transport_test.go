package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/toolsentry/toolsentry/internal/config"
	"github.com/toolsentry/toolsentry/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeRulesFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	contents := `rules:
  - id: deny-bash
    priority: 10
    conditions: {tool_name: "Bash"}
    action: deny
    reason: destructive command blocked
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	cfg := &config.Config{
		RulesFile: writeRulesFile(t),
		Inference: config.InferenceConfig{FallbackEnabled: true},
	}
	cfg.SetDefaults()
	svc, err := service.New(context.Background(), cfg, config.ProviderSecrets{}, testLogger())
	if err != nil {
		t.Fatalf("service.New() unexpected error: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func runLines(t *testing.T, svc *service.Service, lines ...string) []map[string]any {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	tr := New(svc, testLogger(), in, &out)
	if err := tr.Run(context.Background()); err != nil && err != context.Canceled {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	var responses []map[string]any
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestToolsListAdvertisesEvaluateTool(t *testing.T) {
	svc := newTestService(t)
	responses := runLines(t, svc, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	result, ok := responses[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("response missing result: %+v", responses[0])
	}
	tools, ok := result["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("tools = %+v, want one entry", result["tools"])
	}
}

func TestToolsCallDeniesPerRule(t *testing.T) {
	svc := newTestService(t)
	callMsg := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"evaluate_tool_request","arguments":{"tool_name":"Bash","parameters":{"command":"rm -rf /"}}}}`
	responses := runLines(t, svc, callMsg)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	result, ok := responses[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("response missing result: %+v", responses[0])
	}
	content, ok := result["content"].([]any)
	if !ok || len(content) != 1 {
		t.Fatalf("content = %+v, want one entry", result["content"])
	}
	block := content[0].(map[string]any)
	var d struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(block["text"].(string)), &d); err != nil {
		t.Fatalf("decode decision text: %v", err)
	}
	if d.Action != "deny" {
		t.Fatalf("action = %q, want deny", d.Action)
	}
}

func TestNotificationGetsNoResponse(t *testing.T) {
	svc := newTestService(t)
	responses := runLines(t, svc, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	if len(responses) != 0 {
		t.Fatalf("got %d responses for a notification, want 0", len(responses))
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	svc := newTestService(t)
	responses := runLines(t, svc, `{"jsonrpc":"2.0","id":3,"method":"bogus"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if _, ok := responses[0]["error"]; !ok {
		t.Fatalf("expected error field, got %+v", responses[0])
	}
}
