package chatbot

import (
	"context"
	"log/slog"
	"strings"

	"frevagpt/pkg/llm"
)

// Abort reason sent as the last frame when a stop request is honored.
const AbortReason = "Conversation aborted"

// ToolRouter dispatches an accumulated tool call and describes the callable
// tools for the upstream request. Implemented by pkg/tools.
type ToolRouter interface {
	Route(ctx context.Context, name, arguments, callID, threadID string) []Frame
	Definitions() []llm.ToolDefinition
}

// Orchestrator drives one streamed turn: it pulls upstream deltas, maps them
// to wire frames, runs tool-call side trips, restarts the upstream stream
// after tool completion, honors cooperative cancellation through the
// registry, and finalizes the conversation when the stream ends.
//
// The state is owned by a single request; nothing in here is shared across
// requests except the registry.
type Orchestrator struct {
	registry *Registry
	client   llm.Client
	router   ToolRouter
	opts     llm.Options

	threadID        string
	userID          string
	frevaConfigPath string

	upstream   <-chan llm.StreamDelta
	shouldStop bool
	shouldHint bool
	queue      []Frame

	// Tool-call accumulator. The provider sends the name and id only on the
	// first fragment of a call; the arguments arrive in pieces.
	toolName string
	toolArgs string
	toolID   string
	hasTool  bool

	finished bool
}

// NewOrchestrator builds the engine for one turn. Start must be called
// before Step.
func NewOrchestrator(registry *Registry, client llm.Client, router ToolRouter, threadID, userID, frevaConfigPath string) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		client:          client,
		router:          router,
		opts:            llm.DefaultOptions(),
		threadID:        threadID,
		userID:          userID,
		frevaConfigPath: frevaConfigPath,
		shouldHint:      true,
	}
}

// Start opens the upstream stream with the initial message history. Failing
// here lets the handler answer with a plain 500 before any frame is sent.
func (o *Orchestrator) Start(ctx context.Context, messages []llm.Message) error {
	upstream, err := o.client.StreamChat(ctx, messages, o.router.Definitions(), o.opts)
	if err != nil {
		return err
	}
	o.upstream = upstream
	return nil
}

// Step produces the next frame for the client, or ok=false when the body is
// complete. Exactly zero or one frame is emitted per step; multi-frame
// upstream events are buffered in the queue for subsequent steps.
//
// Priority order within a step: thread-id hint, queued frames, termination,
// cancellation check, upstream delta.
func (o *Orchestrator) Step(ctx context.Context) (Frame, bool) {
	if o.finished {
		return Frame{}, false
	}

	if o.shouldHint {
		o.shouldHint = false
		return ThreadHintFrame(o.threadID), true
	}

	if len(o.queue) > 0 {
		frame := o.queue[0]
		o.queue = o.queue[1:]
		return frame, true
	}

	if o.shouldStop {
		// One last frame was already sent; flush the buffer and terminate.
		slog.Debug("Stream is stopping, removing the conversation from the pool", "thread_id", o.threadID)
		o.registry.Finalize(ctx, o.threadID, o.userID)
		o.finished = true
		return Frame{}, false
	}

	if o.registry.ConsumeStop(o.threadID) {
		slog.Debug("Conversation has been stopped, sending one last event", "thread_id", o.threadID)
		abort := StreamEndFrame(AbortReason)
		o.registry.Add(o.threadID, []Frame{abort}, o.frevaConfigPath)
		o.shouldStop = true
		return abort, true
	}

	delta, ok := o.recv(ctx)
	frames := o.mapDelta(ctx, delta, ok)

	o.registry.Add(o.threadID, frames, o.frevaConfigPath)

	for _, f := range frames {
		if f.IsTerminal() {
			o.shouldStop = true
			break
		}
	}

	if len(frames) == 0 {
		// An upstream event produced nothing; that breaks the one-frame-per-
		// step contract, so surface it instead of stalling the client.
		return ServerErrorFrame("No variants found in response."), true
	}

	o.queue = append(o.queue, frames[1:]...)
	return frames[0], true
}

// recv waits for the next upstream delta, honoring request cancellation.
func (o *Orchestrator) recv(ctx context.Context) (llm.StreamDelta, bool) {
	select {
	case <-ctx.Done():
		return llm.StreamDelta{Err: ctx.Err()}, true
	case delta, ok := <-o.upstream:
		return delta, ok
	}
}

// mapDelta converts one upstream event into frames, implementing the
// delta-to-frame mapping table of the wire protocol.
func (o *Orchestrator) mapDelta(ctx context.Context, delta llm.StreamDelta, ok bool) []Frame {
	switch {
	case !ok:
		slog.Warn("Stream ended abruptly and without error; returning StreamEnd")
		return []Frame{StreamEndFrame("Stream ended abruptly")}

	case delta.Err != nil:
		slog.Warn("Error getting response", "error", delta.Err)
		return []Frame{OpenAIErrorFrame("Error getting response.")}

	case delta.Text != nil && delta.ToolCall != nil:
		slog.Warn("Tool call AND content found in response", "text", *delta.Text)
		return []Frame{StreamEndFrame("Tool call AND content found in response, the API specified that this couldn't happen.")}

	case delta.Text != nil:
		return []Frame{AssistantFrame(*delta.Text)}

	case delta.ToolCall != nil:
		return o.accumulateToolCall(delta.ToolCall)

	case delta.FinishReason != llm.FinishNone:
		return o.handleStopEvent(ctx, delta.FinishReason)

	default:
		slog.Warn("No content found in response and no reason to stop given; treating this as an empty Assistant response")
		return []Frame{AssistantFrame("")}
	}
}

// accumulateToolCall folds one tool-call fragment into the accumulator and
// echoes the argument fragment to the client as a Code frame, so the user
// can watch the code being written.
func (o *Orchestrator) accumulateToolCall(tc *llm.ToolCallDelta) []Frame {
	if tc.Parallel > 1 {
		slog.Warn("Multiple tool calls found, but only one is supported; all are ignored except the first", "count", tc.Parallel)
	}

	if tc.Name != "" {
		slog.Debug("New tool call started", "name", tc.Name)
		o.toolName = tc.Name
		o.hasTool = true
	}
	if tc.ID != "" {
		o.toolID = tc.ID
	} else if o.toolID == "" {
		slog.Warn("Tool call expected id, but none set yet")
	}

	fragment := tc.Arguments
	// Drop leading whitespace until the first real content arrives, so the
	// streamed code does not start with stray newlines.
	if strings.TrimSpace(fragment) == "" && o.toolArgs == "" {
		fragment = ""
	}
	o.toolArgs += fragment

	return []Frame{CodeFrame(fragment, o.toolID)}
}

// handleStopEvent maps a finish reason onto frames. A tool_calls finish is
// the signal that the accumulated call is complete and must be executed.
func (o *Orchestrator) handleStopEvent(ctx context.Context, reason llm.FinishReason) []Frame {
	switch reason {
	case llm.FinishStop:
		slog.Debug("Stopping stream due to successful end of generation")
		return []Frame{StreamEndFrame("Generation complete")}

	case llm.FinishLength:
		slog.Info("Stopping stream due to reaching max tokens")
		return []Frame{StreamEndFrame("Reached max tokens")}

	case llm.FinishContentFilter:
		slog.Info("Stopping stream due to content filter")
		return []Frame{StreamEndFrame("Content filter triggered")}

	case llm.FinishFunctionCall:
		slog.Warn("Stopping stream due to deprecated function call")
		return []Frame{StreamEndFrame("Function call is deprecated, LLM should use Tool call instead.")}

	case llm.FinishToolCalls:
		return o.dispatchToolCall(ctx)

	default:
		slog.Warn("Unknown finish reason, ending stream", "reason", reason)
		return []Frame{StreamEndFrame("Generation complete")}
	}
}

// dispatchToolCall executes the accumulated tool call and restarts the
// upstream stream with the full conversation so far plus the tool result.
// No StreamEnd is emitted: from the client's perspective the conversation
// simply continues.
func (o *Orchestrator) dispatchToolCall(ctx context.Context) []Frame {
	var generated []Frame

	if o.hasTool {
		generated = o.router.Route(ctx, o.toolName, o.toolArgs, o.toolID, o.threadID)
		o.toolName, o.toolArgs, o.toolID, o.hasTool = "", "", "", false
	} else {
		slog.Warn("Tool call expected, but not found in response")
		generated = []Frame{CodeErrorFrame("Tool call expected, but not found in response.")}
	}

	conversation, ok := o.registry.Conversation(o.threadID)
	if !ok {
		slog.Error("Tried to restart conversation after tool call, but no active conversation found", "thread_id", o.threadID)
		return []Frame{ServerErrorFrame("Tried to restart conversation after tool call, but failed! No active conversation found.")}
	}

	// The generated frames are not in the registry yet; Step appends them
	// after this returns. The restarted stream still needs them.
	all := append(conversation, generated...)
	messages := ConvertToMessages(all, false)

	upstream, err := o.client.StreamChat(ctx, messages, o.router.Definitions(), o.opts)
	if err != nil {
		slog.Warn("Error creating new stream after tool call", "error", err)
		return []Frame{ServerErrorFrame("Error creating new stream.")}
	}
	o.upstream = upstream

	return generated
}
