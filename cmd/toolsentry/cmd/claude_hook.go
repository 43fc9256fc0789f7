package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// hookHTTPClient is used for the single POST /v1/hooks request the
// claude-hook command makes. An explicit 10s timeout prevents the hook from
// hanging indefinitely when the toolsentry server is unreachable, which
// would block Claude Code's tool execution.
var hookHTTPClient = &http.Client{Timeout: 10 * time.Second}

var claudeHookCmd = &cobra.Command{
	Use:           "claude-hook",
	Short:         "Internal: Claude Code PreToolUse hook handler",
	Hidden:        true,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClaudeHook,
}

func init() {
	rootCmd.AddCommand(claudeHookCmd)
}

// hookDenyOutput is the response printed when the server is unreachable and
// the configured fail mode is "closed"; it matches the hook wire format
// exactly, the same shape the running server returns on a real
// POST /v1/hooks deny.
type hookDenyOutput struct {
	HookSpecificOutput struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason"`
	} `json:"hookSpecificOutput"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// hookDebugf writes a debug log line when TOOLSENTRY_HOOK_DEBUG is set. It
// opens/closes the file on each call to keep the function simple and safe
// for a short-lived hook process.
func hookDebugf(format string, args ...interface{}) {
	debugFile := os.Getenv("TOOLSENTRY_HOOK_DEBUG")
	if debugFile == "" {
		return
	}
	f, err := os.OpenFile(debugFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, format+"\n", args...)
}

func runClaudeHook(cmd *cobra.Command, args []string) error {
	serverAddr := os.Getenv("TOOLSENTRY_SERVER_ADDR")
	failMode := os.Getenv("TOOLSENTRY_FAIL_MODE")
	if serverAddr == "" {
		// Hooks persist in Claude Code's settings.json across process
		// restarts, independent of whichever shell started "toolsentry run" —
		// fall back to the default listen address so the hook still works.
		serverAddr = "http://127.0.0.1:8080"
	}

	hookDebugf("claude-hook invoked: server=%s failMode=%s", serverAddr, failMode)

	inputBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return hookError(failMode, "PreToolUse", "read stdin: "+err.Error())
	}

	// Not every hook event carries a tool_name (e.g. SessionStart, Stop);
	// we only gate PreToolUse, so anything else is silently allowed.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(inputBytes, &raw); err != nil {
		return nil
	}
	if _, hasToolName := raw["tool_name"]; !hasToolName {
		return nil
	}

	hookEventName := "PreToolUse"
	if v, ok := raw["hook_event_name"]; ok {
		_ = json.Unmarshal(v, &hookEventName)
	}

	httpReq, err := http.NewRequest(http.MethodPost, serverAddr+"/v1/hooks", bytes.NewReader(inputBytes))
	if err != nil {
		return hookError(failMode, hookEventName, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := hookHTTPClient.Do(httpReq)
	if err != nil {
		return hookError(failMode, hookEventName, "posting to server: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return hookError(failMode, hookEventName, "reading server response: "+err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return hookError(failMode, hookEventName, fmt.Sprintf("server returned %d: %s", resp.StatusCode, string(body)))
	}

	// The server's /v1/hooks response is already the exact wire format Claude
	// Code expects — relay it verbatim.
	_, err = os.Stdout.Write(body)
	return err
}

// hookError handles a hook-adapter failure according to the configured fail
// mode: fail-closed denies with an explanatory reason; fail-open (the
// default) logs a warning to stderr and allows.
func hookError(failMode, hookEventName, msg string) error {
	hookDebugf("hook error: %s", msg)
	if failMode == "closed" {
		var out hookDenyOutput
		out.HookSpecificOutput.HookEventName = hookEventName
		out.HookSpecificOutput.PermissionDecision = "deny"
		out.HookSpecificOutput.PermissionDecisionReason = "toolsentry: " + msg
		out.Decision = "block"
		out.Reason = "toolsentry: " + msg
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	fmt.Fprintf(os.Stderr, "[toolsentry] hook warning: %s (fail-open, allowing)\n", msg)
	return nil
}
