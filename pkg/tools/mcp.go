package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"frevagpt/pkg/llm"
)

// MCPServerConfig describes one MCP server connection: either a command to
// spawn (stdio transport) or a URL (streamable HTTP transport).
type MCPServerConfig struct {
	Name             string            `json:"name"`
	Command          string            `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	URL              string            `json:"url,omitempty"`
	KeepAliveSeconds int               `json:"keep_alive_seconds,omitempty"`
}

type mcpTool struct {
	server  string
	session *mcppkg.ClientSession
	tool    *mcppkg.Tool
}

// MCPManager holds the active MCP client sessions and the tools they expose.
// The tools are listed once at connect time; remote tool invocations by name
// route through Execute.
type MCPManager struct {
	sessions map[string]*mcppkg.ClientSession
	tools    map[string]*mcpTool
	order    []string
}

// NewMCPManager connects to all configured servers. A server that fails to
// connect is skipped with a log line; the rest of the backend keeps working.
func NewMCPManager(ctx context.Context, servers []MCPServerConfig) *MCPManager {
	m := &MCPManager{
		sessions: make(map[string]*mcppkg.ClientSession),
		tools:    make(map[string]*mcpTool),
	}
	for _, srv := range servers {
		if err := m.connect(ctx, srv); err != nil {
			slog.Error("Failed to connect MCP server", "name", srv.Name, "error", err)
		}
	}
	return m
}

func (m *MCPManager) connect(ctx context.Context, srv MCPServerConfig) error {
	if strings.TrimSpace(srv.Name) == "" {
		return fmt.Errorf("server name required")
	}

	opts := &mcppkg.ClientOptions{}
	if srv.KeepAliveSeconds > 0 {
		opts.KeepAlive = time.Duration(srv.KeepAliveSeconds) * time.Second
	}
	client := mcppkg.NewClient(&mcppkg.Implementation{Name: "frevagpt", Version: "2"}, opts)

	var session *mcppkg.ClientSession
	var err error

	switch {
	case strings.TrimSpace(srv.Command) != "":
		cmd := exec.Command(srv.Command, srv.Args...)
		if len(srv.Env) > 0 {
			env := os.Environ()
			for k, v := range srv.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		session, err = client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	case strings.TrimSpace(srv.URL) != "":
		session, err = client.Connect(ctx, &mcppkg.StreamableClientTransport{Endpoint: srv.URL}, nil)
	default:
		return fmt.Errorf("invalid config: neither command nor url provided")
	}
	if err != nil {
		return err
	}
	m.sessions[srv.Name] = session

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			slog.Error("Failed to list tools for MCP server", "name", srv.Name, "error", err)
			break
		}
		if _, dup := m.tools[tool.Name]; dup {
			slog.Warn("Duplicate MCP tool name, keeping the first", "tool", tool.Name, "server", srv.Name)
			continue
		}
		m.tools[tool.Name] = &mcpTool{server: srv.Name, session: session, tool: tool}
		m.order = append(m.order, tool.Name)
	}
	slog.Info("Connected MCP server", "name", srv.Name, "tools", len(m.order))
	return nil
}

// Close shuts down all active sessions.
func (m *MCPManager) Close() {
	for _, s := range m.sessions {
		_ = s.Close()
	}
}

// HasTool reports whether any connected server exposes the named tool.
func (m *MCPManager) HasTool(name string) bool {
	_, ok := m.tools[name]
	return ok
}

// Definitions returns the MCP tools as upstream tool definitions. MCP and
// the chat-completion APIs share the JSON Schema format, so the input schema
// passes through a plain JSON round-trip.
func (m *MCPManager) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		t := m.tools[name]

		params := map[string]any{"type": "object"}
		if t.tool.InputSchema != nil {
			raw, err := json.Marshal(t.tool.InputSchema)
			if err == nil {
				var schema map[string]any
				if err := json.Unmarshal(raw, &schema); err == nil {
					params = schema
				}
			}
		}

		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: t.tool.Description,
			Parameters:  params,
		})
	}
	return defs
}

// Execute calls the named tool on its server and concatenates the textual
// content of the result. Non-text content is logged and skipped.
func (m *MCPManager) Execute(ctx context.Context, name, arguments string) (string, error) {
	t, ok := m.tools[name]
	if !ok {
		return "", fmt.Errorf("no MCP client was able to execute the function %q", name)
	}

	var args map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := t.session.CallTool(ctx, &mcppkg.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling %q on %s: %w", name, t.server, err)
	}
	if result.IsError {
		slog.Warn("MCP tool reported an error result", "tool", name, "server", t.server)
	}

	var output strings.Builder
	for _, item := range result.Content {
		if text, ok := item.(*mcppkg.TextContent); ok {
			output.WriteString(text.Text)
			output.WriteString("\n")
		} else {
			slog.Warn("MCP tool returned unsupported content type", "tool", name)
		}
	}
	return output.String(), nil
}
