package tools

import (
	"context"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/llm"
)

// Tool is a capability the LLM can invoke through a tool call. Execution
// returns the stream frames to splice into the conversation, typically one
// CodeOutput plus any produced images.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // full JSON Schema object for the arguments
	Execute(ctx context.Context, arguments, callID, threadID string) []chatbot.Frame
}

// Registry holds the native tools by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	if _, ok := r.tools[tool.Name()]; !ok {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the registered tools in registration order as upstream
// tool definitions.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
