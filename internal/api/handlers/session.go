package handlers

import (
	"chainwatch/internal/api/dto"
	"chainwatch/internal/services"
	"net/http"
)

// SessionHandler serves the simulated login at /session.
type SessionHandler struct {
	Sessions *services.SessionService
}

func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req dto.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := h.Sessions.Login(r.Context(), req.Email, req.Role)
		if err != nil {
			writeServiceError(w, r, "login", err)
			return
		}
		writeJSON(w, r, http.StatusCreated, u)

	case http.MethodGet:
		u, ok, err := h.Sessions.Current(r.Context())
		if err != nil {
			writeServiceError(w, r, "current session", err)
			return
		}
		if !ok {
			writeError(w, r, http.StatusNotFound, "no active session")
			return
		}
		writeJSON(w, r, http.StatusOK, u)

	case http.MethodDelete:
		if err := h.Sessions.Logout(r.Context()); err != nil {
			writeServiceError(w, r, "logout", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}
