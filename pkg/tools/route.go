package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/llm"
)

// Router dispatches accumulated tool calls to their implementation: natively
// registered tools first, then the connected MCP servers. It is the tool
// dispatcher the stream engine talks to.
type Router struct {
	registry *Registry
	mcp      *MCPManager // may be nil when no MCP servers are configured
}

// NewRouter builds a router over the native registry and an optional MCP
// manager.
func NewRouter(registry *Registry, mcp *MCPManager) *Router {
	return &Router{registry: registry, mcp: mcp}
}

// Definitions returns every callable tool for the upstream request: native
// tools followed by all MCP tools.
func (r *Router) Definitions() []llm.ToolDefinition {
	defs := r.registry.Definitions()
	if r.mcp != nil {
		defs = append(defs, r.mcp.Definitions()...)
	}
	return defs
}

// Route executes the named tool and returns its result frames. Unknown names
// come back as a tool output so the LLM can correct itself on the next round.
func (r *Router) Route(ctx context.Context, name, arguments, callID, threadID string) []chatbot.Frame {
	// Some models prefix the function namespace.
	name = strings.TrimPrefix(name, "functions.")

	if tool, ok := r.registry.Get(name); ok {
		return tool.Execute(ctx, arguments, callID, threadID)
	}

	if r.mcp != nil && r.mcp.HasTool(name) {
		output, err := r.mcp.Execute(ctx, name, arguments)
		if err != nil {
			slog.Warn("MCP tool call failed", "tool", name, "error", err)
			return []chatbot.Frame{chatbot.CodeErrorFrame(fmt.Sprintf("The tool '%s' failed: %v", name, err))}
		}
		return []chatbot.Frame{chatbot.CodeOutputFrame(output, callID)}
	}

	slog.Warn("Unknown tool call", "name", name)
	return []chatbot.Frame{chatbot.CodeOutputFrame(
		fmt.Sprintf("The function '%s' is not recognized. Currently, only \"code_interpreter\" and the configured MCP tools are supported.", name),
		callID,
	)}
}
