package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeShape(t *testing.T) {
	data, err := AssistantFrame("Hi").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"variant":"Assistant","content":"Hi"}`, string(data))

	data, err = CodeFrame(`{"code":"2+2"}`, "t1").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"variant":"Code","content":"{\"code\":\"2+2\"}","call_id":"t1"}`, string(data))

	// The call id must not leak into variants that have none.
	data, err = StreamEndFrame("Generation complete").Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "call_id")
}

func TestThreadHintFrame(t *testing.T) {
	frame := ThreadHintFrame("abc123")
	assert.Equal(t, VariantServerHint, frame.Variant)
	assert.JSONEq(t, `{"thread_id":"abc123"}`, frame.Content)
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"variant":"User","content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, UserFrame("hello"), frame)

	_, err = DecodeFrame([]byte(`{"variant":"Bogus","content":"x"}`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"variant":`))
	assert.Error(t, err)
}

func TestDecodeFrameRoundTripsNewlines(t *testing.T) {
	original := CodeOutputFrame("line one\nline two", "t9")
	data, err := original.Encode()
	require.NoError(t, err)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestParseVariantList(t *testing.T) {
	names := ParseVariantList(`["User", "Assistant", "Assistant", 'StreamEnd']`)
	assert.Equal(t, []string{"User", "Assistant", "StreamEnd"}, names)

	assert.Empty(t, ParseVariantList(""))
	assert.Equal(t, []string{"User"}, ParseVariantList("User"))
}

func TestHeartbeatFrame(t *testing.T) {
	frame := HeartbeatFrame()
	assert.Equal(t, VariantServerHint, frame.Variant)
	assert.JSONEq(t, `{"CPU":0}`, frame.Content)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StreamEndFrame("x").IsTerminal())
	assert.False(t, AssistantFrame("x").IsTerminal())
	assert.False(t, ServerErrorFrame("x").IsTerminal())
}
