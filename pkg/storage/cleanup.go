package storage

import (
	"frevagpt/pkg/chatbot"
)

// CleanupConversation normalizes a conversation before it is written out:
// consecutive Assistant text fragments are coalesced into one frame,
// consecutive Code fragments with the same call id likewise, and
// empty-payload frames are dropped except terminal frames. Streaming
// produces many tiny deltas; storing them individually would bloat every
// record and slow down replay.
func CleanupConversation(conv chatbot.Conversation) chatbot.Conversation {
	var out chatbot.Conversation

	for _, frame := range conv {
		if frame.Content == "" && !frame.IsTerminal() {
			continue
		}

		if len(out) > 0 {
			last := &out[len(out)-1]
			switch {
			case frame.Variant == chatbot.VariantAssistant && last.Variant == chatbot.VariantAssistant:
				last.Content += frame.Content
				continue
			case frame.Variant == chatbot.VariantCode && last.Variant == chatbot.VariantCode && last.CallID == frame.CallID:
				last.Content += frame.Content
				continue
			}
		}

		out = append(out, frame)
	}

	return out
}
