package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/edustack/go-access-server/access"
	"github.com/edustack/go-access-server/ratelimit"
	"github.com/edustack/go-access-server/sessions"
)

const (
	// ssoFlowCookieName tracks an in-flight authorization-code flow: the
	// CSRF state plus the enrollment the learner was heading for.
	ssoFlowCookieName = "sso_flow"
	// ssoFlowMaxAge bounds how long the provider round trip may take.
	ssoFlowMaxAge = 300 // seconds
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// SSOLoginHandler starts the authorization-code flow: remember where the
// learner was going, then send them to the identity provider.
func (s *Server) SSOLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sso == nil {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}

		enrollmentID := r.URL.Query().Get("enrollment")
		if enrollmentID == "" {
			http.Redirect(w, r, RouteError, http.StatusSeeOther)
			return
		}
		contentType := sessions.ContentType(r.URL.Query().Get("type"))
		if contentType == "" {
			contentType = sessions.ContentTypeScorm
		}
		if !contentType.Valid() {
			http.Redirect(w, r, RouteError, http.StatusSeeOther)
			return
		}

		state := generateRandomString(32)
		s.setSSOFlowCookie(w, r, state+"|"+enrollmentID+"|"+string(contentType), ssoFlowMaxAge)
		http.Redirect(w, r, s.sso.AuthCodeURL(state), http.StatusFound)
	}
}

// SSOCallbackHandler lands the learner coming back from the provider:
// check the state, trade the code for an ID token, then resolve access
// like any other SSO request.
func (s *Server) SSOCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sso == nil {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}

		cookie, err := r.Cookie(ssoFlowCookieName)
		if err != nil {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}
		parts := strings.SplitN(cookie.Value, "|", 3)
		if len(parts) != 3 || parts[0] == "" {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}
		if r.URL.Query().Get("state") != parts[0] {
			http.Redirect(w, r, RouteAccessDenied, http.StatusSeeOther)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}
		rawIDToken, err := s.sso.Exchange(r.Context(), code)
		if err != nil {
			http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
			return
		}

		grant, err := s.resolver.Resolve(r.Context(), access.Request{
			EnrollmentID: parts[1],
			ContentType:  sessions.ContentType(parts[2]),
			ClientIP:     ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			SSOIDToken:   rawIDToken,
		})
		if err != nil {
			s.redirectResolveError(w, r, err)
			return
		}

		s.setSSOFlowCookie(w, r, "", -1) // flow finished, drop the state
		s.SetAccessTokenCookie(w, r, grant.Token, grant.TTL)
		http.Redirect(w, r, grant.ContentURL, http.StatusSeeOther)
	}
}

func (s *Server) setSSOFlowCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     ssoFlowCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
