package tools

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"frevagpt/pkg/chatbot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Generic replies for the code interpreter's failure modes. The safety
// rejection deliberately reveals nothing about which check fired.
const (
	msgGenericFailure  = "A sudden and unexpected error occurred while running the code interpreter. Please try again."
	msgCrashFailure    = "An unexpected error occurred while running the code interpreter. Please try again."
	msgMalformedInput  = "The Input to the Code Interpreter was malformed and not valid JSON. Please try again."
	msgNoCode          = "No code was found while trying to run the code_interpreter. Please try again."
	msgConversationEnd = "The conversation has already ended. Please start a new conversation to use the code interpreter."
)

// encodedImagePrefix marks image lines in the child's stdout.
const encodedImagePrefix = "Encoded Image: "

// outputLimit caps each of stdout and stderr before they are handed back to
// the LLM. 1000 was not enough.
const outputLimit = 2000

// dangerousPatterns are rejected outright. Opening files stays allowed
// because the interpreter needs it for its normal work.
var dangerousPatterns = []string{
	"import os",
	"import sys",
	"exec(",
	"eval(",
	"subprocess",
	"socket",
	"os.system",
	"shutil",
	"ctypes",
	"pickle",
	"__import__",
}

// CodeIsLikelySafe checks the raw tool arguments against the dangerous
// pattern list. The arguments are still JSON at this point, which the
// substring checks handle fine.
func CodeIsLikelySafe(code string) bool {
	for _, pattern := range dangerousPatterns {
		if strings.Contains(code, pattern) {
			slog.Warn("The code contains a dangerous pattern", "pattern", pattern)
			slog.Debug("Rejected code", "code", code)
			return false
		}
	}
	return true
}

// SanitizeCode enforces the non-interactive matplotlib backend. The server
// has no display, so interactive backends would hang the child.
func SanitizeCode(code string) string {
	if strings.Contains(code, "matplotlib") || strings.Contains(code, "plt") {
		return "import matplotlib\nmatplotlib.use('agg')\n" + code
	}
	return code
}

// shorthandImports maps the usage pattern to detect onto the import line that
// makes it work.
var shorthandImports = [][2]string{
	{"freva.", "import freva\n"},
	{"np.", "import numpy as np\n"},
	{"plt.", "import matplotlib.pyplot as plt\n"},
	{"xr.", "import xarray as xr\n"},
	{"pd.", "import pandas as pd\n"},
}

// PostProcess prepends the conventional shorthand imports when the code uses
// a shorthand without importing it.
func PostProcess(code string) string {
	for _, lib := range shorthandImports {
		if strings.Contains(code, lib[0]) && !strings.Contains(code, lib[1]) {
			slog.Debug("Adding import to the code", "import", strings.TrimSpace(lib[1]))
			code = lib[1] + code
		}
	}
	return code
}

// SanitizeImports returns the previously seen import lines that the new
// code does not already contain textually. Importing twice can apparently
// cause issues, so present ones are not repeated.
func SanitizeImports(prevImports []string, code string) []string {
	var imports []string
	for _, prev := range prevImports {
		if !strings.Contains(code, prev) {
			imports = append(imports, prev)
		}
	}
	return imports
}

func isImportLine(line string) bool {
	return strings.HasPrefix(line, "import") ||
		(strings.HasPrefix(line, "from") && strings.Contains(line, "import"))
}

// codeArguments is the expected shape of the tool-call arguments.
type codeArguments struct {
	Code string `json:"code"`
}

// ConversationReader is the slice of the active-conversation registry the
// code interpreter needs: the live buffer, the conversation state, and the
// domain config path of a streaming thread.
type ConversationReader interface {
	Conversation(threadID string) (chatbot.Conversation, bool)
	State(threadID string) (chatbot.ConversationState, bool)
	FrevaConfigPath(threadID string) (string, bool)
}

// HistoryReader reads persisted turns; used to replay imports from earlier
// turns of the thread.
type HistoryReader interface {
	Read(ctx context.Context, threadID string) (chatbot.Conversation, error)
}

// CodeInterpreter executes Python supplied by the LLM in a child process.
// The child is this same binary invoked with --code-interpreter so the
// embedded interpreter can never crash the server process.
type CodeInterpreter struct {
	registry ConversationReader
	history  HistoryReader
	binary   string // path of the executable to spawn; defaults to os.Executable
}

// NewCodeInterpreter wires the interpreter against the registry and the
// persisted history.
func NewCodeInterpreter(registry ConversationReader, history HistoryReader) *CodeInterpreter {
	binary, err := os.Executable()
	if err != nil {
		slog.Error("Cannot resolve own executable path, falling back to argv[0]", "error", err)
		binary = os.Args[0]
	}
	return &CodeInterpreter{registry: registry, history: history, binary: binary}
}

func (c *CodeInterpreter) Name() string {
	return "code_interpreter"
}

func (c *CodeInterpreter) Description() string {
	// Technically a lie, but the main jupyter behavior is simulated: the last
	// line of the snippet is evaluated and returned.
	return "Recieves python code, executes it in a jupyter environment, and returns the result."
}

func (c *CodeInterpreter) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The python code to be executed.",
			},
		},
		"required": []string{"code"},
	}
}

// Execute runs the full input-preparation pipeline and then the child
// process. All failure modes come back as a single generic CodeOutput frame
// so the conversation can continue.
func (c *CodeInterpreter) Execute(ctx context.Context, arguments, callID, threadID string) []chatbot.Frame {
	slog.Debug("Running the code interpreter", "thread_id", threadID)

	frevaConfigPath := ""
	if threadID != "" {
		state, ok := c.registry.State(threadID)
		switch {
		case !ok:
			slog.Warn("No conversation state found for code interpreter run; domain config will be unset", "thread_id", threadID)
		case state != chatbot.StateStreaming:
			slog.Warn("Code interpreter invoked on an ended conversation, refusing to execute", "thread_id", threadID)
			return []chatbot.Frame{chatbot.CodeOutputFrame(msgConversationEnd, callID)}
		default:
			frevaConfigPath, _ = c.registry.FrevaConfigPath(threadID)
		}
	}

	if !CodeIsLikelySafe(arguments) {
		return []chatbot.Frame{chatbot.CodeOutputFrame(msgGenericFailure, callID)}
	}

	if arguments == "" {
		slog.Warn("No code was found while trying to run the code_interpreter")
		return []chatbot.Frame{chatbot.CodeOutputFrame(msgNoCode, callID)}
	}

	var prevImports []string
	if threadID != "" {
		prevImports = c.previousImports(ctx, threadID)
	}

	var parsed codeArguments
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		slog.Warn("Error parsing the code interpreter arguments", "error", err)
		return []chatbot.Frame{chatbot.CodeOutputFrame(msgMalformedInput, callID)}
	}

	code := parsed.Code
	if imports := SanitizeImports(prevImports, code); len(imports) > 0 {
		code = strings.Join(imports, "\n") + "\n" + code
	}
	code = SanitizeCode(code)
	code = PostProcess(code)

	slog.Debug("Executing prepared code", "code", code)

	return c.runChild(ctx, code, callID, threadID, frevaConfigPath)
}

// runChild spawns the interpreter-mode child and parses its output into
// frames. The wait is blocking and runs in the calling goroutine; the stream
// engine calls Execute inline from the request that issued the tool call.
func (c *CodeInterpreter) runChild(ctx context.Context, code, callID, threadID, frevaConfigPath string) []chatbot.Frame {
	cmd := exec.CommandContext(ctx, c.binary, "--code-interpreter", code)
	cmd.Env = append(os.Environ(),
		"THREAD_ID="+threadID,
		"EVALUATION_SYSTEM_CONFIG_FILE="+frevaConfigPath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("The code interpreter crashed", "error", err, "stderr", truncate(stderr.String(), outputLimit))
		return []chatbot.Frame{chatbot.CodeOutputFrame(msgCrashFailure, callID)}
	}

	return ParseChildOutput(stdout.String(), stderr.String(), callID)
}

// ParseChildOutput splits the child's stdout into encoded-image lines and
// regular output, truncates both channels and assembles the result frames:
// one CodeOutput followed by an Image frame per produced image.
func ParseChildOutput(stdout, stderr, callID string) []chatbot.Frame {
	var images []chatbot.Frame
	var plain strings.Builder

	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, encodedImagePrefix) {
			images = append(images, chatbot.ImageFrame(strings.TrimPrefix(line, encodedImagePrefix)))
			continue
		}
		plain.WriteString(line)
		plain.WriteString("\n")
	}

	stdoutShort := truncate(plain.String(), outputLimit)
	stderrShort := truncate(stderr, outputLimit)

	// The LLM usually needs both channels to react to failures.
	combined := strings.TrimSpace(stdoutShort + "\n" + stderrShort)
	if combined == "" {
		slog.Info("The code interpreter returned an empty output")
	}

	frames := []chatbot.Frame{chatbot.CodeOutputFrame(combined, callID)}
	frames = append(frames, images...)
	return frames
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	slog.Warn("Code interpreter output was too long, truncating", "limit", limit)
	return string(runes[:limit])
}

// previousImports scans all Code frames of the thread, both the live buffer
// and the persisted history, for import lines. LLM-generated snippets assume
// the imports of earlier turns, so a fresh interpreter has to replay them.
func (c *CodeInterpreter) previousImports(ctx context.Context, threadID string) []string {
	var conversation chatbot.Conversation
	if buf, ok := c.registry.Conversation(threadID); ok {
		conversation = append(conversation, buf...)
	}
	if c.history != nil {
		if past, err := c.history.Read(ctx, threadID); err == nil {
			conversation = append(conversation, past...)
		}
	}

	var imports []string
	for _, frame := range conversation {
		if frame.Variant != chatbot.VariantCode {
			continue
		}
		for _, line := range extractCodeLines(frame.Content) {
			if isImportLine(line) {
				slog.Debug("Found import line", "line", line)
				imports = append(imports, line)
			}
		}
	}
	return imports
}

// extractCodeLines recovers the code lines from a Code frame. The frame
// content is a fragment of the tool-call argument JSON; full fragments parse
// directly, partial ones fall back to cutting behind the "code" key and
// splitting on the escaped newlines.
func extractCodeLines(content string) []string {
	var parsed codeArguments
	if err := json.Unmarshal([]byte(content), &parsed); err == nil && parsed.Code != "" {
		return strings.Split(parsed.Code, "\n")
	}

	_, rest, found := strings.Cut(content, "\":\"")
	if !found {
		return nil
	}
	return strings.Split(rest, "\\n")
}
