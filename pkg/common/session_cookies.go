package common

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/matst80/slask-grid/pkg/tracking"
)

func generateSessionId() string {
	return uuid.NewString()
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, sessionId string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "sid",
		Value:    sessionId,
		Domain:   strings.TrimPrefix(r.Host, "."),
		SameSite: http.SameSiteNoneMode,
		HttpOnly: true,
		MaxAge:   2592000000,
		Path:     "/",
	})
}

// HandleSessionCookie returns the operator's session id, issuing a fresh one
// (and a session tracking event) when the request carries none.
func HandleSessionCookie(trk tracking.Tracking, w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie("sid")
	if err == nil && uuid.Validate(c.Value) == nil {
		return c.Value
	}
	sessionId := generateSessionId()
	if trk != nil {
		go trk.TrackSession(sessionId, r)
	}
	setSessionCookie(w, r, sessionId)
	return sessionId
}
