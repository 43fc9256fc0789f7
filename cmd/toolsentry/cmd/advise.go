package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolsentry/toolsentry/internal/config"
	"github.com/toolsentry/toolsentry/internal/domain/request"
	"github.com/toolsentry/toolsentry/internal/service"
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Evaluate a single tool request read from stdin and exit",
	Long: `Advise reads one JSON tool request from stdin, evaluates it against the
configured security rules (without starting any server), and prints the
resulting decision as JSON to stdout.

Exit codes:
  0  decision emitted
  1  the input on stdin was not a valid tool request
  2  evaluation could not be set up (the configuration could not be
     loaded, or the rule store or inference wiring could not be
     constructed)

Example:
  echo '{"tool_name":"Bash","parameters":{"command":"rm -rf /"}}' | toolsentry advise`,
	RunE: runAdvise,
}

func init() {
	rootCmd.AddCommand(adviseCmd)
}

type adviseRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	Cwd        string         `json:"cwd"`
}

// parseAdviseRequest decodes and validates the stdin payload, split out from
// runAdvise so it's testable without touching process exit codes.
func parseAdviseRequest(input []byte) (adviseRequest, error) {
	var in adviseRequest
	if err := json.Unmarshal(input, &in); err != nil {
		return adviseRequest{}, fmt.Errorf("invalid JSON on stdin: %w", err)
	}
	if in.ToolName == "" {
		return adviseRequest{}, errors.New("tool_name is required")
	}
	return in, nil
}

func runAdvise(cmd *cobra.Command, args []string) error {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolsentry advise: reading stdin: %v\n", err)
		os.Exit(1)
	}

	in, err := parseAdviseRequest(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolsentry advise: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolsentry advise: loading config: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	secrets := config.LoadProviderSecrets()
	svc, err := service.New(ctx, cfg, secrets, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolsentry advise: initializing service: %v\n", err)
		os.Exit(2)
	}
	defer svc.Stop()

	req := request.New(in.ToolName, in.Parameters, in.SessionID, in.AgentID, in.Cwd)
	d := svc.Engine.Evaluate(ctx, req)

	encoded, err := json.Marshal(d)
	if err != nil {
		return errors.New("toolsentry advise: marshaling decision: " + err.Error())
	}
	fmt.Println(string(encoded))
	return nil
}
