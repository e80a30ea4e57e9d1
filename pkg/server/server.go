// Package server exposes the HTTP surface of the backend: the streaming
// conversation endpoint, the stop endpoint, and the thin collaborators
// around stored threads (reading them, listing them, renaming their topic).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"frevagpt/pkg/chatbot"
	"frevagpt/pkg/llm"
	"frevagpt/pkg/storage"
)

// Server wires the handlers against the registry, the model catalog, the
// tool router and the persistence façade.
type Server struct {
	registry *chatbot.Registry
	clients  *llm.ClientSet
	router   chatbot.ToolRouter
	store    storage.Store
	threads  *storage.MongoStore // nil when the disk backend is active
	authKey  string

	httpServer *http.Server
}

// New assembles a server. threads may be nil; the user-thread listing then
// answers 501.
func New(registry *chatbot.Registry, clients *llm.ClientSet, router chatbot.ToolRouter, store storage.Store, threads *storage.MongoStore, authKey string) *Server {
	return &Server{
		registry: registry,
		clients:  clients,
		router:   router,
		store:    store,
		threads:  threads,
		authKey:  authKey,
	}
}

// Start binds the listener and serves until Stop is called.
func (s *Server) Start(host, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /docs", s.handleDocs)
	mux.HandleFunc("GET /streamresponse", s.handleStreamResponse)
	mux.HandleFunc("/stop", s.handleStop) // POST from the frontend, GET kept for curl convenience
	mux.HandleFunc("GET /getthread", s.handleGetThread)
	mux.HandleFunc("GET /getuserthreads", s.handleGetUserThreads)
	mux.HandleFunc("/setthreadtopic", s.handleSetThreadTopic) // POST from the frontend, GET kept for curl convenience
	mux.HandleFunc("GET /availablechatbots", s.handleAvailableChatbots)
	mux.HandleFunc("/", s.handleNotFound)

	addr := fmt.Sprintf("%s:%s", host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("Starting server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down, letting in-flight streams drain.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
