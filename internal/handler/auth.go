package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/session"
)

const sessionCookie = "sid"

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

func sessionID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, s *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession loads the caller's session and puts it, along with its
// marketplace token, into the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(r.Context(), sessionID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(s.Context(r.Context()), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := sessionFrom(r.Context()); s == nil || !s.User.IsAdmin() {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type SessionResponse struct {
	SessionID string     `json:"session_id"`
	User      model.User `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{SessionID: s.ID, User: s.User, ExpiresAt: s.ExpiresAt}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setSessionCookie(w, s)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.sessions.Register(r.Context(), req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setSessionCookie(w, s)
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), sessionFrom(r.Context()).ID); err != nil {
		h.fail(w, r, err)
		return
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me refreshes the session through the marketplace whoami call.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Restore(r.Context(), sessionFrom(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.User)
}
