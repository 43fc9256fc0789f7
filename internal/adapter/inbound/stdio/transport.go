// Package stdio provides the MCP stdio transport adapter: a single tool,
// evaluate_tool_request, exposing the same Policy Engine semantics as the
// HTTP transport's /v1/evaluate endpoint, wrapped around stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolsentry/toolsentry/internal/domain/request"
	"github.com/toolsentry/toolsentry/internal/service"
	"github.com/toolsentry/toolsentry/internal/telemetry"
)

const toolName = "evaluate_tool_request"

// Transport is the inbound adapter that speaks newline-delimited JSON-RPC
// 2.0 over stdin/stdout, exposing evaluate_tool_request as the only MCP
// tool.
type Transport struct {
	svc    *service.Service
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

// New constructs a Transport reading from in and writing to out (os.Stdin/
// os.Stdout in production; swappable in tests).
func New(svc *service.Service, logger *slog.Logger, in io.Reader, out io.Writer) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{svc: svc, logger: logger, in: in, out: out}
}

// envelope is the minimal JSON-RPC 2.0 request shape this transport reads:
// a request has a non-null "id"; a notification omits it and gets no
// response.
type envelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Run reads one JSON-RPC message per line until ctx is cancelled or in is
// exhausted, dispatching each to the matching handler and writing back one
// response line per request.
func (t *Transport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			t.logger.Warn("stdio transport: malformed message", "error", err)
			continue
		}

		hasID := len(env.ID) > 0 && string(env.ID) != "null"
		result, rpcErr := t.handle(ctx, env.Method, env.Params)
		if !hasID {
			continue
		}
		if err := t.writeResponse(env.ID, result, rpcErr); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (t *Transport) writeResponse(id json.RawMessage, result any, rpcErr *jsonrpc.Error) error {
	resp := response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		resp.Result = result
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = t.out.Write(append(encoded, '\n'))
	return err
}

func (t *Transport) handle(ctx context.Context, method string, params json.RawMessage) (any, *jsonrpc.Error) {
	switch method {
	case "initialize":
		return initializeResult(), nil
	case "tools/list":
		return toolsListResult(), nil
	case "tools/call":
		return t.callTool(ctx, params)
	default:
		return nil, &jsonrpc.Error{Code: -32601, Message: "method not found: " + method}
	}
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (t *Transport) callTool(ctx context.Context, rawParams json.RawMessage) (any, *jsonrpc.Error) {
	var params toolCallParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, &jsonrpc.Error{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	if params.Name != toolName {
		return nil, &jsonrpc.Error{Code: -32602, Message: "unknown tool: " + params.Name}
	}

	toolReq, err := toolRequestFromArguments(params.Arguments)
	if err != nil {
		return nil, &jsonrpc.Error{Code: -32602, Message: err.Error()}
	}

	evalCtx, span := telemetry.Tracer().Start(ctx, "policyengine.Evaluate")
	defer span.End()
	d := t.svc.Engine.Evaluate(evalCtx, toolReq)
	content, err := json.Marshal(d)
	if err != nil {
		return nil, &jsonrpc.Error{Code: -32603, Message: err.Error()}
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(content)},
		},
	}, nil
}

func toolRequestFromArguments(args map[string]any) (request.ToolRequest, error) {
	name, _ := args["tool_name"].(string)
	if name == "" {
		return request.ToolRequest{}, errors.New("tool_name is required")
	}
	params, _ := args["parameters"].(map[string]any)
	sessionID, _ := args["session_id"].(string)
	agentID, _ := args["agent_id"].(string)
	cwd, _ := args["cwd"].(string)
	return request.New(name, params, sessionID, agentID, cwd), nil
}

func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]any{"name": "toolsentry", "version": "0.1.0"},
		"capabilities":    map[string]any{"tools": map[string]any{}},
	}
}

func toolsListResult() map[string]any {
	return map[string]any{
		"tools": []map[string]any{
			{
				"name":        toolName,
				"description": "Evaluate an AI coding-agent tool call against the configured security rules and return a decision.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool_name":  map[string]any{"type": "string"},
						"parameters": map[string]any{"type": "object"},
						"session_id": map[string]any{"type": "string"},
						"agent_id":   map[string]any{"type": "string"},
						"cwd":        map[string]any{"type": "string"},
					},
					"required": []string{"tool_name"},
				},
			},
		},
	}
}
