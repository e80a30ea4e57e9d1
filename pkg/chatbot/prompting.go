package chatbot

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"frevagpt/pkg/llm"
)

//go:embed prompt_sources/starting_prompt.txt
//go:embed prompt_sources/examples.jsonl
//go:embed prompt_sources/summary_prompt.txt
var promptSources embed.FS

var (
	promptOnce     sync.Once
	promptMessages []llm.Message
	promptJSON     string
)

// StartingPromptMessages returns the message list every new conversation
// opens with: the starting system prompt, the few-shot example conversation
// and the summary system prompt. Some models, especially Llama derivatives,
// need the second system prompt after the examples.
func StartingPromptMessages() []llm.Message {
	promptOnce.Do(buildPrompt)
	return append([]llm.Message{}, promptMessages...)
}

// StartingPromptJSON returns the starting messages serialized as JSON, the
// payload of the Prompt frame recorded at the head of every new thread.
func StartingPromptJSON() string {
	promptOnce.Do(buildPrompt)
	return promptJSON
}

func buildPrompt() {
	starting := readPromptFile("starting_prompt.txt")
	summary := readPromptFile("summary_prompt.txt")
	examples := readPromptFile("examples.jsonl")

	messages := []llm.Message{llm.NewSystemMessage("prompt", starting)}
	messages = append(messages, exampleMessages(examples)...)
	messages = append(messages, llm.NewSystemMessage("prompt", summary))

	promptMessages = messages

	encoded, err := json.Marshal(messages)
	if err != nil {
		// There is no error path for marshaling this flat structure; if one
		// appears, the first request would record an empty prompt, so fail
		// loudly at startup instead.
		slog.Error("Error converting starting prompt to JSON", "error", err)
		os.Exit(1)
	}
	promptJSON = string(encoded)
}

func readPromptFile(name string) string {
	data, err := promptSources.ReadFile("prompt_sources/" + name)
	if err != nil {
		slog.Error("Unable to read prompt source", "file", name, "error", err)
		os.Exit(1)
	}
	return strings.TrimRight(string(data), "\n")
}

// exampleMessages parses the example conversation, one JSON frame per line,
// and converts it into messages. Images have no place in the examples; if
// any sneak in they are not sent.
func exampleMessages(content string) []llm.Message {
	var frames Conversation
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		frame, err := DecodeFrame([]byte(line))
		if err != nil {
			slog.Warn("Skipping unparsable example line", "error", err)
			continue
		}
		frames = append(frames, frame)
	}
	return ConvertToMessages(frames, false)
}

// EnsureRWDir creates the per-turn scratch directory the Python side writes
// into. Not every library function creates parents, so the directory has to
// exist before the turn starts. A user id that the filesystem rejects is
// retried in a sanitized, alphanumeric-only form.
func EnsureRWDir(userID, threadID string) {
	dir := filepath.Join("rw_dir", userID, threadID)
	if _, err := os.Stat(dir); err == nil {
		return
	}
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return
	}
	slog.Debug("Failed to create rw_dir, retrying with sanitized user id", "error", err)

	sanitized := sanitizeAlphanumeric(userID)
	dir = filepath.Join("rw_dir", sanitized, threadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create sanitized rw_dir; Python might have trouble storing data", "error", err)
	}
}

func sanitizeAlphanumeric(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
