package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"peerstream/internal/domain"
)

type startSessionRequest struct {
	Locator string `json:"locator"`
}

type sessionListResponse struct {
	Sessions []domain.Status `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleStartSession(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, sessionListResponse{Sessions: s.registry.Snapshot()})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// handleStartSession resolves the locator to a session, creating one if
// needed, and returns its current status. Re-posting a live locator is
// idempotent and refreshes the session instead of duplicating it.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Locator) == "" {
		writeError(w, http.StatusBadRequest, "invalid_locator", "locator is required")
		return
	}

	sess, err := s.registry.GetOrCreate(r.Context(), req.Locator)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Status())
}

// handleSessionByID routes /sessions/{id}[/stream|/download].
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleSessionStatus(w, r, id)
		case http.MethodDelete:
			s.handleDestroySession(w, id)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "stream":
			s.handleStream(w, r, id, false)
			return
		case "download":
			s.handleStream(w, r, id, true)
			return
		}
	}
	http.NotFound(w, r)
}

// handleSessionStatus serves the poll projection. Polling counts as
// access and defers idle cleanup.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.registry.Get(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.registry.Touch(id)
	writeJSON(w, http.StatusOK, sess.Status())
}

// handleDestroySession tears down the session. Deleting an
// already-destroyed session succeeds again so retried DELETEs are safe.
func (s *Server) handleDestroySession(w http.ResponseWriter, id string) {
	if _, err := s.registry.Get(id); err != nil {
		if errors.Is(err, domain.ErrGone) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeSessionError(w, err)
		return
	}
	s.registry.Destroy(id, "client request")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}
