package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frevagpt/pkg/chatbot"
)

type fakeConversations struct {
	conv  chatbot.Conversation
	state chatbot.ConversationState
	known bool
}

func (f *fakeConversations) Conversation(string) (chatbot.Conversation, bool) {
	return f.conv, f.known
}

func (f *fakeConversations) State(string) (chatbot.ConversationState, bool) {
	return f.state, f.known
}

func (f *fakeConversations) FrevaConfigPath(string) (string, bool) {
	return "/cfg", f.known
}

type fakeHistory struct {
	conv chatbot.Conversation
}

func (f *fakeHistory) Read(context.Context, string) (chatbot.Conversation, error) {
	return f.conv, nil
}

func newTestInterpreter(reg ConversationReader, hist HistoryReader) *CodeInterpreter {
	ci := NewCodeInterpreter(reg, hist)
	// /bin/echo prints its arguments, so the "child output" is the flag plus
	// the fully prepared code. That exercises the preparation pipeline
	// without needing a Python runtime in the test environment.
	ci.binary = "/bin/echo"
	return ci
}

func TestSafetyFilterRejectsEveryPattern(t *testing.T) {
	patterns := []string{
		"import os", "import sys", "exec(", "eval(", "subprocess", "socket",
		"os.system", "shutil", "ctypes", "pickle", "__import__",
	}
	ci := newTestInterpreter(&fakeConversations{}, nil)

	for _, pattern := range patterns {
		arguments := `{"code": "` + pattern + `"}`
		assert.False(t, CodeIsLikelySafe(arguments), pattern)

		frames := ci.Execute(context.Background(), arguments, "c1", "")
		require.Len(t, frames, 1, pattern)
		assert.Equal(t, chatbot.VariantCodeOutput, frames[0].Variant)
		// The rejection must not reveal which pattern fired.
		assert.Equal(t, msgGenericFailure, frames[0].Content, pattern)
		assert.NotContains(t, frames[0].Content, pattern)
	}
}

func TestSafetyFilterAllowsPlainCode(t *testing.T) {
	assert.True(t, CodeIsLikelySafe(`{"code": "open('data.nc')\n2+2"}`))
}

func TestMalformedArgumentsReturnGenericParseError(t *testing.T) {
	ci := newTestInterpreter(&fakeConversations{}, nil)

	frames := ci.Execute(context.Background(), `{"code"`, "c2", "")
	require.Len(t, frames, 1)
	assert.Equal(t, chatbot.CodeOutputFrame(msgMalformedInput, "c2"), frames[0])
}

func TestEmptyArgumentsReturnNoCodeError(t *testing.T) {
	ci := newTestInterpreter(&fakeConversations{}, nil)

	frames := ci.Execute(context.Background(), "", "c3", "")
	require.Len(t, frames, 1)
	assert.Equal(t, chatbot.CodeOutputFrame(msgNoCode, "c3"), frames[0])
}

func TestEndedConversationRefusesExecution(t *testing.T) {
	ci := newTestInterpreter(&fakeConversations{state: chatbot.StateEnded, known: true}, nil)

	frames := ci.Execute(context.Background(), `{"code": "2+2"}`, "c4", "t1")
	require.Len(t, frames, 1)
	assert.Equal(t, chatbot.CodeOutputFrame(msgConversationEnd, "c4"), frames[0])
}

func TestImportAccumulationAcrossTurns(t *testing.T) {
	// Turn 1 imported numpy; turn 2 assumes it without importing.
	reg := &fakeConversations{
		state: chatbot.StateStreaming,
		known: true,
		conv: chatbot.Conversation{
			chatbot.CodeFrame(`{"code": "import numpy as np\na = np.zeros(3)"}`, "old1"),
		},
	}
	hist := &fakeHistory{conv: chatbot.Conversation{
		chatbot.CodeFrame(`{"code": "from pathlib import Path\np = Path('.')"}`, "old2"),
	}}
	ci := newTestInterpreter(reg, hist)

	frames := ci.Execute(context.Background(), `{"code": "a.sum()"}`, "c5", "t1")
	require.Len(t, frames, 1)

	executed := frames[0].Content
	assert.Contains(t, executed, "import numpy as np")
	assert.Contains(t, executed, "from pathlib import Path")
	assert.Contains(t, executed, "a.sum()")
}

func TestImportAccumulationSkipsAlreadyPresentImports(t *testing.T) {
	reg := &fakeConversations{
		state: chatbot.StateStreaming,
		known: true,
		conv: chatbot.Conversation{
			chatbot.CodeFrame(`{"code": "import numpy as np"}`, "old1"),
		},
	}
	ci := newTestInterpreter(reg, &fakeHistory{})

	frames := ci.Execute(context.Background(), `{"code": "import numpy as np\nnp.ones(2)"}`, "c6", "t1")
	require.Len(t, frames, 1)
	assert.Equal(t, 1, strings.Count(frames[0].Content, "import numpy as np"))
}

func TestSanitizeCodeForcesAggBackend(t *testing.T) {
	code := SanitizeCode("plt.plot([1,2])")
	assert.True(t, strings.HasPrefix(code, "import matplotlib\nmatplotlib.use('agg')\n"))

	assert.Equal(t, "2+2", SanitizeCode("2+2"))
}

func TestPostProcessAddsShorthandImports(t *testing.T) {
	code := PostProcess("df = pd.DataFrame()\nxs = xr.DataArray([1])")
	assert.Contains(t, code, "import pandas as pd\n")
	assert.Contains(t, code, "import xarray as xr\n")

	// Already imported shorthands are left alone.
	code = PostProcess("import numpy as np\nnp.zeros(1)")
	assert.Equal(t, 1, strings.Count(code, "import numpy as np"))
}

func TestParseChildOutputExtractsImages(t *testing.T) {
	stdout := "4\n\nEncoded Image: aGVsbG8=\nEncoded Image: d29ybGQ=\n"
	frames := ParseChildOutput(stdout, "", "c7")

	require.Len(t, frames, 3)
	assert.Equal(t, chatbot.CodeOutputFrame("4", "c7"), frames[0])
	assert.Equal(t, chatbot.ImageFrame("aGVsbG8="), frames[1])
	assert.Equal(t, chatbot.ImageFrame("d29ybGQ="), frames[2])
}

func TestParseChildOutputTruncatesBothChannels(t *testing.T) {
	longOut := strings.Repeat("a", 3000)
	longErr := strings.Repeat("b", 3000)

	frames := ParseChildOutput(longOut, longErr, "c8")
	require.Len(t, frames, 1)

	content := frames[0].Content
	assert.Equal(t, 2000, strings.Count(content, "a"))
	assert.Equal(t, 2000, strings.Count(content, "b"))
}

func TestParseChildOutputCombinesStdoutAndStderr(t *testing.T) {
	frames := ParseChildOutput("result\n", "Traceback: NameError\n", "c9")
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0].Content, "result")
	assert.Contains(t, frames[0].Content, "Traceback: NameError")
	assert.Equal(t, chatbot.VariantCodeOutput, frames[0].Variant)
	assert.Equal(t, "c9", frames[0].CallID)
}

func TestCrashReturnsGenericError(t *testing.T) {
	ci := NewCodeInterpreter(&fakeConversations{}, nil)
	ci.binary = "/bin/false"

	frames := ci.Execute(context.Background(), `{"code": "2+2"}`, "c10", "")
	require.Len(t, frames, 1)
	assert.Equal(t, chatbot.CodeOutputFrame(msgCrashFailure, "c10"), frames[0])
}

func TestExtractCodeLinesFallsBackOnPartialJSON(t *testing.T) {
	lines := extractCodeLines(`{"code":"import numpy as np\nprint(np`)
	assert.Contains(t, lines, "import numpy as np")
}
