package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/edustack/go-access-server/access"
	"github.com/edustack/go-access-server/magiclink"
	"github.com/edustack/go-access-server/ratelimit"
	"github.com/edustack/go-access-server/scorm"
	"github.com/edustack/go-access-server/sessions"
)

type contentAccessRequest struct {
	EnrollmentID string `json:"enrollmentId"`
	ContentType  string `json:"contentType"`
	CourseID     string `json:"courseId,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
}

type contentAccessResponse struct {
	ContentURL  string `json:"contentUrl"`
	ContentType string `json:"contentType"`
	AuthMethod  string `json:"authMethod"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}

// ContentAccessHandler grants a learner access to their training content.
// It accepts either a corporate SSO ID token in the body or an existing
// access token (cookie or bearer) and responds with the launch URL.
func (s *Server) ContentAccessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body contentAccessRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}

		grant, err := s.resolver.Resolve(r.Context(), access.Request{
			EnrollmentID: body.EnrollmentID,
			ContentType:  sessions.ContentType(body.ContentType),
			CourseID:     body.CourseID,
			ClientIP:     ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			SSOIDToken:   body.IDToken,
			AccessToken:  accessTokenFromRequest(r),
		})
		if err != nil {
			s.writeResolveError(w, err)
			return
		}

		s.SetAccessTokenCookie(w, r, grant.Token, grant.TTL)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(contentAccessResponse{
			ContentURL:  grant.ContentURL,
			ContentType: string(grant.ContentType),
			AuthMethod:  string(grant.AuthMethod),
			ExpiresIn:   int(grant.TTL.Seconds()),
		})
	}
}

// MagicLinkHandler is the browser landing point for emailed links. On
// success the learner is redirected straight into the content player; any
// rejection ends on the access-denied page without detail.
func (s *Server) MagicLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link := r.URL.Query().Get("link")
		if link == "" {
			http.Redirect(w, r, RouteAccessDenied, http.StatusSeeOther)
			return
		}

		contentType := sessions.ContentType(r.URL.Query().Get("type"))
		if contentType == "" {
			contentType = sessions.ContentTypeScorm
		}

		grant, err := s.resolver.Resolve(r.Context(), access.Request{
			ContentType: contentType,
			ClientIP:    ratelimit.ClientIP(r),
			UserAgent:   r.UserAgent(),
			MagicLink:   link,
		})
		if err != nil {
			s.redirectResolveError(w, r, err)
			return
		}

		s.SetAccessTokenCookie(w, r, grant.Token, grant.TTL)
		http.Redirect(w, r, grant.ContentURL, http.StatusSeeOther)
	}
}

type progressRequest struct {
	EnrollmentID string         `json:"enrollmentId"`
	ContentType  string         `json:"contentType"`
	State        map[string]any `json:"state"`
}

type progressResponse struct {
	Summary   scorm.ProgressSummary `json:"summary"`
	Status    string                `json:"status"`
	Completed bool                  `json:"completed"`
}

// ProgressHandler commits a runtime state snapshot for a session. Every
// commit re-verifies the token and the device binding before anything is
// interpreted or written.
func (s *Server) ProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body progressRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}

		_, sess, err := s.resolver.VerifyAccess(
			r.Context(),
			accessTokenFromRequest(r),
			body.EnrollmentID,
			sessions.ContentType(body.ContentType),
			ratelimit.ClientIP(r),
			r.UserAgent(),
		)
		if err != nil {
			s.writeResolveError(w, err)
			return
		}

		summary := scorm.Interpret(scorm.StateFromMap(body.State))
		status := sess.Status
		completed := scorm.IsCompletionMet(summary.CompletionStatus, summary.SuccessStatus)
		if completed && status != sessions.StatusCompleted {
			status = sessions.StatusCompleted
			if err := s.sessions.UpdateStatus(r.Context(), sess.ID, status); err != nil {
				s.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to update session status")
				writeJSONError(w, "server_error", "Failed to record progress", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(progressResponse{
			Summary:   summary,
			Status:    status,
			Completed: completed,
		})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// LoginPageHandler is where expired or missing credentials land. Learners
// re-enter either through corporate SSO or a fresh emailed link.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Your session has expired. Sign in through your company portal or use the training link from your email.\n"))
	}
}

// AccessDeniedHandler is the terminal page for rejected magic links and
// device mismatches. It is deliberately uniform: no reason is disclosed.
func (s *Server) AccessDeniedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Access denied. Please use the most recent training link from your email, or contact your administrator.\n"))
	}
}

func (s *Server) ErrorPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Something went wrong. Please try again.\n"))
	}
}

// writeResolveError maps resolver errors onto API status codes. Token and
// identity failures are 401; link and device-binding rejections are 403
// with no distinguishing detail.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.AuthRequiredErr):
		writeJSONError(w, "authentication_required", "Valid credentials are required", http.StatusUnauthorized)
	case errors.Is(err, magiclink.LinkInvalidErr), errors.Is(err, sessions.FingerprintMismatchErr):
		writeJSONError(w, "access_denied", "Access denied", http.StatusForbidden)
	default:
		s.logger.Error().Err(err).Msg("resolve failed")
		writeJSONError(w, "server_error", "Internal server error", http.StatusInternalServerError)
	}
}

// redirectResolveError is the browser-flow counterpart of writeResolveError.
func (s *Server) redirectResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.AuthRequiredErr):
		http.Redirect(w, r, RouteAuthLogin, http.StatusSeeOther)
	case errors.Is(err, magiclink.LinkInvalidErr), errors.Is(err, sessions.FingerprintMismatchErr):
		http.Redirect(w, r, RouteAccessDenied, http.StatusSeeOther)
	default:
		s.logger.Error().Err(err).Msg("resolve failed")
		http.Redirect(w, r, RouteError, http.StatusSeeOther)
	}
}

// writeJSONError writes a uniform JSON error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
