package llm

import (
	"context"
)

// FinishReason is the normalized reason the upstream provider gave for ending
// a generation. All providers map their native values onto these.
type FinishReason string

const (
	FinishNone          FinishReason = ""
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishFunctionCall  FinishReason = "function_call"
)

// ToolCallDelta is one fragment of a streamed tool call. The provider sends
// the name and id only on the first fragment; the argument string arrives in
// pieces across many fragments.
type ToolCallDelta struct {
	ID        string // set on the first fragment only
	Name      string // set on the first fragment only
	Arguments string // argument fragment, concatenated by the consumer
	Parallel  int    // how many tool calls the raw delta carried (>1 is a protocol anomaly)
}

// StreamDelta is one upstream event, carrying up to three optional fields.
// The stream engine maps each delta onto wire frames. Err reports a
// mid-stream transport failure.
type StreamDelta struct {
	Text         *string
	ToolCall     *ToolCallDelta
	FinishReason FinishReason
	Err          error
}

// ToolDefinition describes a callable function for the upstream request.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Options are the per-request generation knobs shared by all providers.
type Options struct {
	MaxTokens        int64
	Temperature      float64
	FrequencyPenalty float64
}

// DefaultOptions mirror the values the production chatbot streams with. The
// frequency penalty nudges the model away from repeating the empty string
// endlessly; the temperature keeps it factual without being robotic.
func DefaultOptions() Options {
	return Options{
		MaxTokens:        16000,
		Temperature:      0.4,
		FrequencyPenalty: 0.1,
	}
}

// Client is the streaming interface every provider implements. The returned
// channel delivers one StreamDelta per upstream event and is closed when the
// upstream stream ends.
type Client interface {
	StreamChat(ctx context.Context, messages []Message, tools []ToolDefinition, opts Options) (<-chan StreamDelta, error)
}

// Completer is the optional non-streaming interface, used for short one-shot
// requests like topic summarization. Not all providers implement it.
type Completer interface {
	Complete(ctx context.Context, messages []Message, maxTokens int64) (string, error)
}
