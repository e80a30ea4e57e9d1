package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedConversation() Conversation {
	return Conversation{
		PromptFrame("prompt json"),
		ServerHintFrame(`{"thread_id":"x"}`),
		UserFrame("question one"),
		AssistantFrame("answer one"),
		StreamEndFrame("Generation complete"),
		ServerHintFrame(`{"thread_id":"x"}`),
		UserFrame("question two"),
		AssistantFrame("answer two"),
		StreamEndFrame("Generation complete"),
	}
}

func TestFilterVariantsExactMatch(t *testing.T) {
	matched, err := FilterVariants(
		`["ServerHint","User","Assistant","StreamEnd"]`,
		storedConversation(),
	)
	require.NoError(t, err)

	// The prompt is never part of the hint; the match starts at the first
	// stored frame after it.
	require.Len(t, matched, 4)
	assert.Equal(t, UserFrame("question one"), matched[1])
}

func TestFilterVariantsIgnoresServerHints(t *testing.T) {
	matched, err := FilterVariants(
		`["User","Assistant","StreamEnd"]`,
		storedConversation(),
	)
	require.NoError(t, err)

	require.Len(t, matched, 3)
	assert.Equal(t, UserFrame("question one"), matched[0])
	assert.Equal(t, AssistantFrame("answer one"), matched[1])
}

func TestFilterVariantsIgnoresEndVariantsForLongerEdit(t *testing.T) {
	matched, err := FilterVariants(
		`["User","Assistant","User","Assistant"]`,
		storedConversation(),
	)
	require.NoError(t, err)

	require.Len(t, matched, 4)
	assert.Equal(t, AssistantFrame("answer two"), matched[3])
}

func TestFilterVariantsDeduplicatesFrontendList(t *testing.T) {
	// Streaming frontends see many Assistant deltas; storage coalesces them.
	matched, err := FilterVariants(
		`["User","Assistant","Assistant","Assistant","StreamEnd"]`,
		storedConversation(),
	)
	require.NoError(t, err)
	require.Len(t, matched, 3)
}

func TestFilterVariantsMismatch(t *testing.T) {
	_, err := FilterVariants(`["CodeOutput","Image"]`, storedConversation())
	assert.ErrorIs(t, err, ErrNoMatchingVariants)
}
