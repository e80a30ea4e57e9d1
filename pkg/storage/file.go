package storage

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"frevagpt/pkg/chatbot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore persists one conversation per file under ./threads/, one
// JSON-encoded frame per line. An earlier format stored quoted
// "<Variant>:<payload>" tokens, which loses newlines inside payloads on the
// round-trip; JSON lines keep the payload intact and stay greppable.
type FileStore struct {
	dir string
}

// NewFileStore creates the backend rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "threads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating thread directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".txt")
}

// Append writes the cleaned frames to the end of the thread file, creating
// it on first write. The user id is not recorded by the disk backend.
func (s *FileStore) Append(_ context.Context, threadID, _ string, content chatbot.Conversation) error {
	content = CleanupConversation(content)
	if len(content) == 0 {
		slog.Debug("Content is empty, not writing anything to file", "thread_id", threadID)
		return nil
	}

	var sb strings.Builder
	for _, frame := range content {
		line, err := frame.Encode()
		if err != nil {
			slog.Warn("Skipping unencodable frame", "thread_id", threadID, "error", err)
			continue
		}
		sb.Write(line)
		sb.WriteString("\n")
	}

	f, err := os.OpenFile(s.path(threadID), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening thread file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("writing thread file: %w", err)
	}
	return nil
}

// Read returns the stored conversation. A missing file surfaces as
// os.ErrNotExist for the caller to turn into a 404. Unparsable lines are
// skipped so one corrupt frame does not take the whole thread down.
func (s *FileStore) Read(_ context.Context, threadID string) (chatbot.Conversation, error) {
	f, err := os.Open(s.path(threadID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var conv chatbot.Conversation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024) // images are large
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, err := chatbot.DecodeFrame([]byte(line))
		if err != nil {
			slog.Warn("Skipping unparsable line in conversation file", "thread_id", threadID, "error", err)
			continue
		}
		conv = append(conv, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading thread file: %w", err)
	}
	return conv, nil
}
