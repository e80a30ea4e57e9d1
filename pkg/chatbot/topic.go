package chatbot

import (
	"context"
	"log/slog"

	"frevagpt/pkg/llm"
)

const topicInputLimit = 5000

const topicSystemPrompt = "A user has written the following request. Summarize it in a few words so that it may be displayed as an overview. Do not write anything other than the summary."

// TopicSummarizer condenses the user's first request into a few words for
// the frontend's history view, using a small completion model.
type TopicSummarizer struct {
	client llm.Completer
}

// NewTopicSummarizer wraps a completion-capable client.
func NewTopicSummarizer(client llm.Completer) *TopicSummarizer {
	return &TopicSummarizer{client: client}
}

// SummarizeTopic never fails: every problem degrades to a placeholder so
// thread persistence is not blocked on the summarizer.
func (t *TopicSummarizer) SummarizeTopic(ctx context.Context, topic string) string {
	if len(topic) > topicInputLimit {
		topic = topic[:topicInputLimit] + "..."
	}
	if topic == "" {
		slog.Warn("Received an empty topic for summarization")
		return "Empty request"
	}

	result, err := t.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: topicSystemPrompt},
		{Role: llm.RoleUser, Content: topic},
	}, 50)
	if err != nil {
		slog.Warn("Error occurred while summarizing topic", "error", err)
		return "Error occurred while summarizing topic"
	}
	if result == "" {
		slog.Warn("Summary is empty, returning default message")
		return "No summary available"
	}
	return result
}
