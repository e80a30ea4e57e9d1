package chatbot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"frevagpt/pkg/llm"
)

type fakeCompleter struct {
	result string
	err    error
	gotIn  string
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message, _ int64) (string, error) {
	f.gotIn = messages[len(messages)-1].Content
	return f.result, f.err
}

func TestSummarizeTopic(t *testing.T) {
	completer := &fakeCompleter{result: "CMIP6 precipitation search"}
	s := NewTopicSummarizer(completer)

	got := s.SummarizeTopic(context.Background(), "Which CMIP6 datasets have monthly precipitation?")
	assert.Equal(t, "CMIP6 precipitation search", got)
}

func TestSummarizeTopicEdgeCases(t *testing.T) {
	s := NewTopicSummarizer(&fakeCompleter{result: ""})
	assert.Equal(t, "Empty request", s.SummarizeTopic(context.Background(), ""))
	assert.Equal(t, "No summary available", s.SummarizeTopic(context.Background(), "something"))

	s = NewTopicSummarizer(&fakeCompleter{err: assert.AnError})
	assert.Equal(t, "Error occurred while summarizing topic", s.SummarizeTopic(context.Background(), "something"))
}

func TestSummarizeTopicTruncatesLongInput(t *testing.T) {
	completer := &fakeCompleter{result: "ok"}
	s := NewTopicSummarizer(completer)

	s.SummarizeTopic(context.Background(), strings.Repeat("x", 6000))
	assert.LessOrEqual(t, len(completer.gotIn), topicInputLimit+3)
	assert.True(t, strings.HasSuffix(completer.gotIn, "..."))
}
