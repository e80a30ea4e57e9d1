package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frevagpt/pkg/chatbot"
)

type stubTool struct {
	name   string
	frames []chatbot.Frame
	gotArg string
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (s *stubTool) Execute(_ context.Context, arguments, _, _ string) []chatbot.Frame {
	s.gotArg = arguments
	return s.frames
}

func TestRouterDispatchesNativeTool(t *testing.T) {
	reg := NewRegistry()
	stub := &stubTool{name: "code_interpreter", frames: []chatbot.Frame{chatbot.CodeOutputFrame("4", "c1")}}
	reg.Register(stub)
	router := NewRouter(reg, nil)

	frames := router.Route(context.Background(), "code_interpreter", `{"code":"2+2"}`, "c1", "t1")
	require.Len(t, frames, 1)
	assert.Equal(t, "4", frames[0].Content)
	assert.Equal(t, `{"code":"2+2"}`, stub.gotArg)
}

func TestRouterStripsFunctionNamespacePrefix(t *testing.T) {
	reg := NewRegistry()
	stub := &stubTool{name: "code_interpreter", frames: []chatbot.Frame{chatbot.CodeOutputFrame("ok", "c2")}}
	reg.Register(stub)
	router := NewRouter(reg, nil)

	frames := router.Route(context.Background(), "functions.code_interpreter", "{}", "c2", "t1")
	require.Len(t, frames, 1)
	assert.Equal(t, "ok", frames[0].Content)
}

func TestRouterAnswersUnknownToolAsOutput(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)

	frames := router.Route(context.Background(), "databrowser", "{}", "c3", "t1")
	require.Len(t, frames, 1)
	assert.Equal(t, chatbot.VariantCodeOutput, frames[0].Variant)
	assert.Contains(t, frames[0].Content, "'databrowser' is not recognized")
	assert.Equal(t, "c3", frames[0].CallID)
}

func TestRegistryDefinitionsKeepOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "b_tool"})
	reg.Register(&stubTool{name: "a_tool"})

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b_tool", defs[0].Name)
	assert.Equal(t, "a_tool", defs[1].Name)
}
