package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/llm"
	"frevagpt/pkg/storage"
)

const testAuthKey = "K"

// memoryStore is an in-memory storage.Store for handler tests.
type memoryStore struct {
	mu      sync.Mutex
	threads map[string]chatbot.Conversation
}

func newMemoryStore() *memoryStore {
	return &memoryStore{threads: make(map[string]chatbot.Conversation)}
}

func (s *memoryStore) Append(_ context.Context, threadID, _ string, content chatbot.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], storage.CleanupConversation(content)...)
	return nil
}

func (s *memoryStore) Read(_ context.Context, threadID string) (chatbot.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.threads[threadID]
	if !ok {
		return nil, storage.ErrThreadNotFound
	}
	return append(chatbot.Conversation{}, conv...), nil
}

// nullRouter satisfies chatbot.ToolRouter for turns without tool calls.
type nullRouter struct{}

func (nullRouter) Route(context.Context, string, string, string, string) []chatbot.Frame {
	return nil
}
func (nullRouter) Definitions() []llm.ToolDefinition { return nil }

func newTestServer(t *testing.T, clients *llm.ClientSet, store *memoryStore) (*Server, *chatbot.Registry) {
	t.Helper()
	if store == nil {
		store = newMemoryStore()
	}
	if clients == nil {
		clients = llm.NewClientSet(map[string]llm.Client{"test-model": nil}, []string{"test-model"})
	}
	registry := chatbot.NewRegistry(store)
	return New(registry, clients, nullRouter{}, store, nil, testAuthKey), registry
}

func TestAuthRejectsMissingKey(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/streamresponse?input=hello", nil)
	rec := httptest.NewRecorder()
	srv.handleStreamResponse(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No key provided in the request.")
}

func TestAuthRejectsWrongKey(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stop?auth_key=wrong&thread_id=x", nil)
	rec := httptest.NewRecorder()
	srv.handleStop(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized request.")
}

func TestStreamResponseRequiresInput(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/streamresponse?auth_key="+testAuthKey, nil)
	rec := httptest.NewRecorder()
	srv.handleStreamResponse(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Input not found.")
}

func TestStopEndpointStatuses(t *testing.T) {
	srv, registry := newTestServer(t, nil, nil)

	call := func(threadID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/stop?auth_key="+testAuthKey+"&thread_id="+threadID, nil)
		rec := httptest.NewRecorder()
		srv.handleStop(rec, req)
		return rec
	}

	// Unknown thread.
	assert.Equal(t, http.StatusNotFound, call("missing").Code)

	// Streaming thread stops once, then reports not-running.
	registry.Add("t1", []chatbot.Frame{chatbot.UserFrame("hi")}, "")
	rec := call("t1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Conversation stopped.", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, call("t1").Code)

	// Missing thread id.
	req := httptest.NewRequest(http.MethodPost, "/stop?auth_key="+testAuthKey, nil)
	w := httptest.NewRecorder()
	srv.handleStop(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetThread(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Append(context.Background(), "t1", "u1", chatbot.Conversation{
		chatbot.UserFrame("hi"),
		chatbot.AssistantFrame("Hello"),
	}))
	srv, _ := newTestServer(t, nil, store)

	req := httptest.NewRequest(http.MethodGet, "/getthread?auth_key="+testAuthKey+"&thread_id=t1", nil)
	rec := httptest.NewRecorder()
	srv.handleGetThread(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"variant":"User","content":"hi"},{"variant":"Assistant","content":"Hello"}]`,
		rec.Body.String(),
	)

	req = httptest.NewRequest(http.MethodGet, "/getthread?auth_key="+testAuthKey+"&thread_id=missing", nil)
	rec = httptest.NewRecorder()
	srv.handleGetThread(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thread not found.")
}

func TestGetUserThreadsWithoutDocumentStore(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/getuserthreads?auth_key="+testAuthKey+"&user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.handleGetUserThreads(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSetThreadTopicValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	call := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/setthreadtopic?"+query, nil)
		rec := httptest.NewRecorder()
		srv.handleSetThreadTopic(rec, req)
		return rec
	}

	// Missing thread id.
	rec := call("auth_key=" + testAuthKey + "&topic=new&user_id=u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thread ID not found.")

	// Missing topic.
	rec = call("auth_key=" + testAuthKey + "&thread_id=t1&user_id=u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing topic")

	// Missing user id.
	rec = call("auth_key=" + testAuthKey + "&thread_id=t1&topic=new")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User ID not found.")

	// The disk backend records no topics.
	rec = call("auth_key=" + testAuthKey + "&thread_id=t1&topic=new&user_id=u1")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	// Auth short-circuits before any validation.
	rec = call("thread_id=t1&topic=new&user_id=u1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetThreadTopicAcceptsAliasedParameters(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	// thread-id and new_topic are accepted aliases; with both present the
	// request passes validation and stops at the missing document store.
	req := httptest.NewRequest(http.MethodPost,
		"/setthreadtopic?auth_key="+testAuthKey+"&thread-id=t1&new_topic=renamed&user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.handleSetThreadTopic(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestAvailableChatbots(t *testing.T) {
	clients := llm.NewClientSet(
		map[string]llm.Client{"gpt-4o-mini": nil, "llama3.2": nil},
		[]string{"gpt-4o-mini", "llama3.2"},
	)
	srv, _ := newTestServer(t, clients, nil)

	req := httptest.NewRequest(http.MethodGet, "/availablechatbots?auth_key="+testAuthKey, nil)
	rec := httptest.NewRecorder()
	srv.handleAvailableChatbots(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["gpt-4o-mini","llama3.2"]`, rec.Body.String())
}

func TestPingAndDocs(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.handlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "pong", string(body))

	rec = httptest.NewRecorder()
	srv.handleDocs(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "/streamresponse"))
}
