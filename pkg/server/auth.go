package server

import (
	"log/slog"
	"net/http"
)

// Authorization messages are part of the HTTP contract with the frontend.
const (
	msgNoKey        = "No key provided in the request. Please set the auth_key in the query parameters."
	msgUnauthorized = "Unauthorized request."
	msgNoServerKey  = "No auth key found in the environment; Authorization failed."
)

// authorize checks the auth_key query parameter against the configured key
// and writes the failure response itself. Handlers bail out when it returns
// false, before any frame is emitted.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	key := r.URL.Query().Get("auth_key")
	if key == "" {
		slog.Warn("No key provided in the request")
		http.Error(w, msgNoKey, http.StatusUnauthorized)
		return false
	}
	if s.authKey == "" {
		slog.Error("No auth key found in the environment, sending 500")
		http.Error(w, msgNoServerKey, http.StatusInternalServerError)
		return false
	}
	if key != s.authKey {
		slog.Warn("Unauthorized request")
		http.Error(w, msgUnauthorized, http.StatusUnauthorized)
		return false
	}
	slog.Debug("Authorized request")
	return true
}
