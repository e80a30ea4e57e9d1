package chatbot

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Variant name constants define the tagged-union tags of the stream protocol.
// All frames sent to the client carry exactly one of these tags.
const (
	VariantPrompt      = "Prompt"      // The initial system/example prompt, as JSON
	VariantUser        = "User"        // User input text
	VariantAssistant   = "Assistant"   // An LLM text delta, often Markdown
	VariantCode        = "Code"        // A code-interpreter input delta plus its tool-call id
	VariantCodeOutput  = "CodeOutput"  // Tool result, correlated by call id
	VariantImage       = "Image"       // Base64-encoded PNG produced by tool execution
	VariantServerHint  = "ServerHint"  // Server-originated JSON metadata (thread id, heartbeats)
	VariantServerError = "ServerError" // Internal backend fault
	VariantOpenAIError = "OpenAIError" // Upstream provider fault
	VariantCodeError   = "CodeError"   // Tool-dispatch fault (starting the tool failed, not the code itself)
	VariantStreamEnd   = "StreamEnd"   // Terminal frame with reason
)

// Frame is the wire unit of the streaming protocol. Frames are serialized as
// JSON objects {"variant": <tag>, "content": <payload>} concatenated with no
// delimiter; clients parse by incremental brace-balancing.
//
// CallID is only set for Code and CodeOutput frames and correlates a tool
// result with the tool call that produced it.
type Frame struct {
	Variant string `json:"variant"`
	Content string `json:"content"`
	CallID  string `json:"call_id,omitempty"`
}

// Conversation is an ordered sequence of frames. At most one Prompt frame may
// be present and it is always first; a StreamEnd frame, if present, is last.
type Conversation []Frame

func PromptFrame(content string) Frame     { return Frame{Variant: VariantPrompt, Content: content} }
func UserFrame(content string) Frame       { return Frame{Variant: VariantUser, Content: content} }
func AssistantFrame(content string) Frame  { return Frame{Variant: VariantAssistant, Content: content} }
func ImageFrame(content string) Frame      { return Frame{Variant: VariantImage, Content: content} }
func ServerHintFrame(content string) Frame { return Frame{Variant: VariantServerHint, Content: content} }
func ServerErrorFrame(msg string) Frame    { return Frame{Variant: VariantServerError, Content: msg} }
func OpenAIErrorFrame(msg string) Frame    { return Frame{Variant: VariantOpenAIError, Content: msg} }
func CodeErrorFrame(msg string) Frame      { return Frame{Variant: VariantCodeError, Content: msg} }
func StreamEndFrame(reason string) Frame   { return Frame{Variant: VariantStreamEnd, Content: reason} }

func CodeFrame(content, callID string) Frame {
	return Frame{Variant: VariantCode, Content: content, CallID: callID}
}

func CodeOutputFrame(content, callID string) Frame {
	return Frame{Variant: VariantCodeOutput, Content: content, CallID: callID}
}

// ThreadHintFrame builds the ServerHint that announces the thread id to the
// client as the first frame of every stream.
func ThreadHintFrame(threadID string) Frame {
	return ServerHintFrame(fmt.Sprintf(`{"thread_id": %q}`, threadID))
}

// IsTerminal reports whether the frame ends a stream.
func (f Frame) IsTerminal() bool {
	return f.Variant == VariantStreamEnd
}

// Encode serializes the frame for the wire. Serialization of a flat struct
// cannot fail with jsoniter, but the streaming HTTP handler still guards the
// error path by substituting a ServerError frame.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// knownVariants is used to validate frames parsed from storage or prompt assets.
var knownVariants = map[string]bool{
	VariantPrompt:      true,
	VariantUser:        true,
	VariantAssistant:   true,
	VariantCode:        true,
	VariantCodeOutput:  true,
	VariantImage:       true,
	VariantServerHint:  true,
	VariantServerError: true,
	VariantOpenAIError: true,
	VariantCodeError:   true,
	VariantStreamEnd:   true,
}

// KnownVariant reports whether name is one of the protocol's variant tags.
func KnownVariant(name string) bool {
	return knownVariants[name]
}

// DecodeFrame parses a single serialized frame, rejecting unknown variant tags.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if !KnownVariant(f.Variant) {
		return Frame{}, fmt.Errorf("decoding frame: unknown variant %q", f.Variant)
	}
	return f, nil
}

// VariantNames returns the bare tag list of a conversation, in order.
// Used by the branching matcher to compare against the frontend's hint.
func VariantNames(conv Conversation) []string {
	names := make([]string, len(conv))
	for i, f := range conv {
		names[i] = f.Variant
	}
	return names
}

// ParseVariantList parses the frontend's comma-separated variant hint, which
// may arrive with quotes, brackets and whitespace. Consecutive duplicates are
// collapsed because the frontend does not deduplicate deltas.
func ParseVariantList(raw string) []string {
	cleaner := strings.NewReplacer(" ", "", "\"", "", "'", "", "[", "", "]", "")
	parts := strings.Split(cleaner.Replace(raw), ",")

	var names []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(names) > 0 && names[len(names)-1] == p {
			continue
		}
		names = append(names, p)
	}
	return names
}
