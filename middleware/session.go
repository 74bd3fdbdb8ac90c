package middleware

import (
	"net/http"

	"github.com/gorilla/sessions"

	"Gamarr/config"
)

const SessionName = "gamarr-session"

// NewSessionStore builds the cookie store shared with the login frontend.
func NewSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
