package chatbot

import (
	"log/slog"

	"frevagpt/pkg/llm"
)

// ConvertToMessages rebuilds the upstream message history from a
// conversation buffer. Used when the stream is restarted after a tool call
// and when a stored thread is continued.
//
// Adjacent Assistant fragments coalesce into one message, Code fragments
// with the same call id into one tool-call message, and a CodeOutput becomes
// the tool message answering its call. ServerHint, the error variants and
// StreamEnd carry no conversational content and are dropped. Images are
// dropped on replay unless includeImages is set; historical plots would blow
// up the context for no benefit.
func ConvertToMessages(conv Conversation, includeImages bool) []llm.Message {
	var messages []llm.Message

	for _, frame := range conv {
		switch frame.Variant {
		case VariantPrompt:
			// The prompt frame stores the full starting message list as
			// JSON. Older records may hold a bare prompt string instead;
			// those become a single system message.
			var stored []llm.Message
			if err := json.Unmarshal([]byte(frame.Content), &stored); err == nil && len(stored) > 0 {
				messages = append(messages, stored...)
			} else {
				messages = append(messages, llm.NewSystemMessage("prompt", frame.Content))
			}

		case VariantUser:
			messages = append(messages, llm.NewUserMessage(frame.Content))

		case VariantAssistant:
			if n := len(messages); n > 0 && messages[n-1].Role == llm.RoleAssistant && len(messages[n-1].ToolCalls) == 0 {
				messages[n-1].Content += frame.Content
				continue
			}
			messages = append(messages, llm.NewAssistantMessage(frame.Content))

		case VariantCode:
			if n := len(messages); n > 0 && len(messages[n-1].ToolCalls) == 1 && messages[n-1].ToolCalls[0].ID == frame.CallID {
				messages[n-1].ToolCalls[0].Arguments += frame.Content
				continue
			}
			messages = append(messages, llm.NewToolCallMessage(llm.ToolCall{
				ID:        frame.CallID,
				Name:      "code_interpreter",
				Arguments: frame.Content,
			}))

		case VariantCodeOutput:
			messages = append(messages, llm.NewToolResultMessage(frame.CallID, frame.Content))

		case VariantImage:
			if !includeImages {
				continue
			}
			// Replayed images go back as user content; providers that
			// cannot take raw base64 text will simply see a marker.
			messages = append(messages, llm.NewUserMessage("[image attached]"))

		case VariantServerHint, VariantServerError, VariantOpenAIError, VariantCodeError, VariantStreamEnd:
			continue

		default:
			slog.Warn("Unknown variant during message conversion, skipping", "variant", frame.Variant)
		}
	}

	return messages
}
