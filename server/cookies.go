package server

import (
	"net/http"
	"time"
)

const (
	// accessTokenCookieName is the name of the cookie carrying the short-lived
	// access token between the gateway and the content player.
	accessTokenCookieName = "access_token"
)

func (s *Server) SetAccessTokenCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// accessTokenFromRequest pulls the access token from the Authorization
// header first, then from the cookie.
func accessTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(accessTokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
