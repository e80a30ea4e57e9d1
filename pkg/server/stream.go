package server

import (
	"errors"
	"log/slog"
	"net/http"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/llm"
)

// fallbackFrevaConfig keeps the Python side functional when the frontend
// forgets to pass a config path. Any freva call would otherwise fail.
const fallbackFrevaConfig = "/work/ch1187/clint/freva-dev/freva/evaluation_system.conf"

// handleStreamResponse starts or continues one streamed turn.
//
// Query parameters: thread_id (empty mints a new thread), input (required),
// auth_key (required), freva_config (optional, with a deployment fallback),
// chatbot (optional catalog entry), variants (optional branching hint) and
// user_id (optional, recorded on the stored thread).
//
// The response body is a concatenation of JSON frames with no separator,
// served as application/octet-stream. Every stream ends with exactly one
// terminal frame unless the connection breaks.
func (s *Server) handleStreamResponse(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	query := r.URL.Query()

	threadID := query.Get("thread_id")
	createNew := threadID == ""
	if createNew {
		slog.Debug("Creating a new thread")
		threadID = s.registry.NewConversationID()
	}

	input := query.Get("input")
	if input == "" {
		slog.Warn("The user requested a stream without an input")
		http.Error(w, "Input not found. Please provide a non-empty input in the query parameters.", http.StatusBadRequest)
		return
	}

	frevaConfigPath := query.Get("freva_config")
	if frevaConfigPath == "" {
		frevaConfigPath = query.Get("freva-config")
	}
	if frevaConfigPath == "" {
		slog.Warn("The user requested a stream without a freva_config path; any usage of the freva library may fail")
		frevaConfigPath = fallbackFrevaConfig
	}

	userID := query.Get("user_id")
	if userID == "" {
		userID = "unknown"
	}

	model, client := s.clients.Select(query.Get("chatbot"))
	slog.Info("Starting stream", "thread_id", threadID, "model", model, "input", input)

	messages, ok := s.initialMessages(w, r, threadID, input, frevaConfigPath, createNew)
	if !ok {
		return
	}

	// The thread id hint and the user input belong to the conversation
	// buffer even though the hint is emitted separately.
	s.registry.Add(threadID, []chatbot.Frame{
		chatbot.ThreadHintFrame(threadID),
		chatbot.UserFrame(input),
	}, frevaConfigPath)

	chatbot.EnsureRWDir(userID, threadID)

	orch := chatbot.NewOrchestrator(s.registry, client, s.router, threadID, userID, frevaConfigPath)
	if err := orch.Start(r.Context(), messages); err != nil {
		slog.Warn("Error creating stream", "error", err)
		s.registry.Finalize(r.Context(), threadID, userID)
		http.Error(w, "Error creating stream.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for {
		frame, ok := orch.Step(r.Context())
		if !ok {
			return
		}

		data, err := frame.Encode()
		if err != nil {
			slog.Error("Error converting frame to string, falling back to a server error frame", "error", err)
			data, _ = chatbot.ServerErrorFrame("Error converting frame to string.").Encode()
		}

		if _, err := w.Write(data); err != nil {
			// The client went away; flush the buffer and stop pulling
			// upstream deltas.
			slog.Debug("Client disconnected mid-stream", "thread_id", threadID, "error", err)
			s.registry.Finalize(r.Context(), threadID, userID)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// initialMessages builds the upstream history for the turn: the full
// starting prompt for a new thread, or the stored conversation (optionally
// narrowed by the frontend's branching hint) for a continued one. The user
// input is appended in both cases. Returns ok=false after writing an error
// response.
func (s *Server) initialMessages(w http.ResponseWriter, r *http.Request, threadID, input, frevaConfigPath string, createNew bool) ([]llm.Message, bool) {
	if createNew {
		prompt := chatbot.PromptFrame(chatbot.StartingPromptJSON())
		s.registry.Add(threadID, []chatbot.Frame{prompt}, frevaConfigPath)

		messages := chatbot.StartingPromptMessages()
		messages = append(messages, llm.NewUserMessage(input))
		return messages, true
	}

	slog.Debug("Expecting stored content for thread", "thread_id", threadID)
	content, err := s.store.Read(r.Context(), threadID)
	if err != nil {
		slog.Warn("Error reading thread", "thread_id", threadID, "error", err)
		http.Error(w, "Error reading thread.", http.StatusInternalServerError)
		return nil, false
	}

	if hint := r.URL.Query().Get("variants"); hint != "" {
		content, err = chatbot.FilterVariants(hint, content)
		if errors.Is(err, chatbot.ErrNoMatchingVariants) {
			http.Error(w, "The provided variants do not match the stored conversation.", http.StatusBadRequest)
			return nil, false
		}
	}

	messages := chatbot.ConvertToMessages(content, false)
	messages = append(messages, llm.NewUserMessage(input))
	return messages, true
}
