package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-knxlink/internal/link"
)

// Session list bounds.
const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/channel", s.handleChannel)
		if s.events != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{id}/commands", s.handleSessionCommands)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// handleHealth returns the link health. Anything but healthy answers 503
// so supervisors can probe it directly.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.link.Health()
	if h.Version == "" {
		h.Version = s.version
	}
	status := http.StatusOK
	if h.Status != link.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// handleChannel returns the open channel's state and counters.
func (s *Server) handleChannel(w http.ResponseWriter, _ *http.Request) {
	status := s.link.Status()
	if status == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no open channel")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleListSessions returns recent journalled sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session journal disabled")
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSessionLimit {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	sessions, err := s.journal.RecentSessions(r.Context(), s.link.LinkID(), limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []link.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionCommands returns the commands sent during one session.
func (s *Server) handleSessionCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session journal disabled")
		return
	}

	id := chi.URLParam(r, "id")
	commands, err := s.journal.Commands(r.Context(), id)
	if err != nil {
		s.logger.Error("listing commands failed", "error", err, "session", id)
		writeInternalError(w, "failed to list commands")
		return
	}
	if commands == nil {
		commands = []link.CommandRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  id,
		"commands": commands,
		"count":    len(commands),
	})
}
