package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// handlePing answers the liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

// handleStop cancels an in-flight stream. Cancellation is cooperative: the
// state flips to Stopping here, and the producing task observes it before
// forwarding the next upstream delta.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		http.Error(w, "Thread ID not found. Please provide a thread_id in the query parameters.", http.StatusBadRequest)
		return
	}

	slog.Debug("Trying to stop conversation", "thread_id", threadID)
	switch s.registry.RequestStop(threadID) {
	case chatbot.StopFound:
		slog.Debug("Successfully stopped running conversation", "thread_id", threadID)
		_, _ = w.Write([]byte("Conversation stopped."))
	case chatbot.StopNotRunning:
		http.Error(w, "Conversation not running.", http.StatusBadRequest)
	default:
		http.Error(w, "Conversation not found.", http.StatusNotFound)
	}
}

// handleGetThread returns a stored conversation as a JSON array of frames.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		http.Error(w, "Thread ID not found. Please provide a thread_id in the query parameters.", http.StatusBadRequest)
		return
	}

	content, err := s.store.Read(r.Context(), threadID)
	if errors.Is(err, storage.ErrThreadNotFound) {
		slog.Info("The user requested a thread that does not exist", "thread_id", threadID)
		http.Error(w, "Thread not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error reading thread file", "thread_id", threadID, "error", err)
		http.Error(w, "Error reading thread file.", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(content)
	if err != nil {
		slog.Error("Error serializing thread content", "error", err)
		http.Error(w, "Error serializing thread content.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// userThreadSummary is the listing shape the frontend's history view needs:
// everything except the conversation content.
type userThreadSummary struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Date     string `json:"date"`
	Topic    string `json:"topic"`
}

// handleGetUserThreads lists the user's most recent threads, newest first.
// num_threads (default 10) bounds the listing; an optional 0-based page
// number paginates further back. Only the document-store backend records
// users, so the disk backend answers 501.
func (s *Server) handleGetUserThreads(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	query := r.URL.Query()

	userID := query.Get("user_id")
	if userID == "" {
		http.Error(w, "User ID not found. Please provide a user_id in the query parameters.", http.StatusBadRequest)
		return
	}

	if s.threads == nil {
		http.Error(w, "Thread listing requires the document-store backend.", http.StatusNotImplemented)
		return
	}

	limit := int64(10)
	if raw := query.Get("num_threads"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 8); err == nil && n > 0 {
			limit = n
		}
	}
	page := int64(-1)
	if raw := query.Get("page"); raw != "" {
		if p, err := strconv.ParseInt(raw, 10, 8); err == nil && p >= 0 {
			page = p
		}
	}

	threads, err := s.threads.ReadUserThreads(r.Context(), userID, limit, page)
	if err != nil {
		slog.Error("Error listing user threads", "user_id", userID, "error", err)
		http.Error(w, "Error listing user threads.", http.StatusInternalServerError)
		return
	}

	summaries := make([]userThreadSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, userThreadSummary{
			UserID:   t.UserID,
			ThreadID: t.ThreadID,
			Date:     t.Date,
			Topic:    t.Topic,
		})
	}

	payload, err := json.Marshal(summaries)
	if err != nil {
		http.Error(w, "Error serializing thread list.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleSetThreadTopic overwrites the stored topic of a thread so a user can
// rename a conversation in the history view. Requires the document-store
// backend; the disk backend records no topics.
func (s *Server) handleSetThreadTopic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	query := r.URL.Query()

	threadID := query.Get("thread_id")
	if threadID == "" {
		threadID = query.Get("thread-id")
	}
	if threadID == "" {
		http.Error(w, "Thread ID not found. Please provide a thread_id in the query parameters.", http.StatusBadRequest)
		return
	}

	topic := query.Get("topic")
	if topic == "" {
		topic = query.Get("new_topic")
	}
	if topic == "" {
		slog.Warn("User tried to set thread topic without providing a new topic")
		http.Error(w, "Missing topic; please set a topic using the query string", http.StatusBadRequest)
		return
	}

	userID := query.Get("user_id")
	if userID == "" {
		http.Error(w, "User ID not found. Please provide a user_id in the query parameters.", http.StatusBadRequest)
		return
	}

	if s.threads == nil {
		http.Error(w, "Topic renaming requires the document-store backend.", http.StatusNotImplemented)
		return
	}

	slog.Debug("Setting thread topic", "user_id", userID, "thread_id", threadID, "topic", topic)

	err := s.threads.SetTopic(r.Context(), threadID, userID, topic)
	if errors.Is(err, storage.ErrThreadNotFound) {
		http.Error(w, "Thread not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Warn("Failed to update thread topic", "thread_id", threadID, "error", err)
		http.Error(w, "Failed to update thread topic.", http.StatusInternalServerError)
		return
	}

	slog.Debug("Successfully updated thread topic", "thread_id", threadID)
	_, _ = w.Write([]byte("Successfully updated thread topic."))
}

// handleAvailableChatbots returns the model catalog; the first entry is the
// default chatbot.
func (s *Server) handleAvailableChatbots(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	payload, err := json.Marshal(s.clients.Catalog())
	if err != nil {
		http.Error(w, "Error serializing chatbot list.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Not found. See /docs for the available endpoints.", http.StatusNotFound)
}

// handleDocs serves a plain-text overview of the API surface.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(docsText))
}

const docsText = `FrevaGPT backend

GET  /ping
    Liveness probe, replies "pong".

GET  /streamresponse?thread_id=&input=&auth_key=&freva_config=&chatbot=&variants=&user_id=
    Starts or continues a streamed conversation turn. An empty thread_id
    creates a new thread; its id arrives in the first ServerHint frame.
    The body is a concatenation of JSON objects
    {"variant": "<tag>", "content": "<payload>"} with no separator; clients
    parse it by incremental brace-balancing. Every stream ends with exactly
    one StreamEnd frame unless the connection breaks.
    The optional variants parameter carries the list of variant names the
    frontend wants to continue from when editing a past conversation.

POST /stop?thread_id=&auth_key=
    Cancels the in-flight stream of the given thread. The stream replies
    with StreamEnd("Conversation aborted") and closes.

GET  /getthread?thread_id=&auth_key=
    Returns the stored conversation as a JSON array of frames.

GET  /getuserthreads?user_id=&auth_key=&num_threads=&page=
    Returns the user's latest threads (id, date, topic), newest first.
    num_threads defaults to 10; the optional 0-based page number paginates
    further back.

POST /setthreadtopic?thread_id=&topic=&user_id=&auth_key=
    Overwrites the stored topic of a thread, so a conversation can be
    renamed in the history view.

GET  /availablechatbots?auth_key=
    Returns the model catalog; the first entry is the default chatbot.
`
