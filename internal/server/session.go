package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const sessionCookieName = "solardash_session"

// sessionID returns the session token from the request cookie, or "" when the
// browser has none yet.
func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ensureSession returns the request's session token, minting a fresh opaque
// one and setting the cookie when absent. The token carries no claims; it is
// only a key into the in-memory credential cache.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if id := sessionID(r); id != "" {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.sessionTTL),
	})
	return id
}

// clearSession expires the cookie and drops all per-session server state.
func (s *Server) clearSession(w http.ResponseWriter, id string) {
	if id != "" {
		s.vault.Sessions().Invalidate(id)
		s.dropClient(id)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
