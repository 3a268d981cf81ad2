// Package mcpserver exposes a [tools.Dispatcher] as a Model Context Protocol
// server, so desktop agents and other MCP hosts can query the store with the
// same read-only tools the voice assistant uses.
//
// Each call is routed through [tools.Dispatcher.Dispatch], so MCP clients get
// the same payloads (including error payloads) as the live agent. Payloads
// are returned as a single JSON text content block; error payloads set
// IsError.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quilang-hardware/hardy/internal/tools"
	"github.com/quilang-hardware/hardy/pkg/live"
)

// Implementation name reported to MCP clients.
const serverName = "hardy-store"

// New returns an MCP server with every tool of d registered.
func New(d *tools.Dispatcher, version string) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil)
	for _, def := range d.Definitions() {
		srv.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def),
		}, handler(d, def.Name))
	}
	return srv
}

// HTTPHandler serves srv over the streamable HTTP transport.
func HTTPHandler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

// RunStdio serves srv on stdin/stdout until ctx ends or the client
// disconnects.
func RunStdio(ctx context.Context, srv *mcpsdk.Server) error {
	if err := srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run stdio: %w", err)
	}
	return nil
}

// inputSchema returns the tool's parameter schema, substituting an empty
// object schema for argument-less tools since MCP requires one.
func inputSchema(def live.ToolDefinition) map[string]any {
	if def.Parameters != nil {
		return def.Parameters
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func handler(d *tools.Dispatcher, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := map[string]any{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("mcpserver: %s: decode arguments: %w", name, err)
			}
		}

		res := d.Dispatch(ctx, live.ToolCall{ID: uuid.NewString(), Name: name, Args: args})

		text, err := json.Marshal(res.Payload)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: %s: encode result: %w", name, err)
		}
		_, failed := res.Payload["error"]
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
			IsError: failed,
		}, nil
	}
}
