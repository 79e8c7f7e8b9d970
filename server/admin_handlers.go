package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type issueLinkRequest struct {
	UserID       string `json:"userId"`
	EnrollmentID string `json:"enrollmentId"`
	CourseID     string `json:"courseId,omitempty"`
	TTLSeconds   int    `json:"ttlSeconds,omitempty"` // 0 = configured default
}

type issueLinkResponse struct {
	Link      string `json:"link"`
	MagicURL  string `json:"magicUrl"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// AdminIssueLinkHandler mints a magic link for the campaign system to
// email out. It is authenticated with the shared admin API key, never
// exposed to learners.
func (s *Server) AdminIssueLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminKey := s.config.GetAdminAPIKey()
		if adminKey == "" {
			writeJSONError(w, "not_configured", "Link issuance is not configured", http.StatusServiceUnavailable)
			return
		}
		if subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(adminKey)) != 1 {
			writeJSONError(w, "invalid_client", "Invalid admin API key", http.StatusUnauthorized)
			return
		}

		var body issueLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if body.UserID == "" || body.EnrollmentID == "" {
			writeJSONError(w, "invalid_request", "userId and enrollmentId are required", http.StatusBadRequest)
			return
		}

		ttl := s.config.GetMagicLinkTTL()
		if body.TTLSeconds > 0 {
			ttl = time.Duration(body.TTLSeconds) * time.Second
		}

		link, err := s.links.Issue(r.Context(), body.UserID, body.EnrollmentID, body.CourseID, ttl)
		if err != nil {
			s.logger.Error().Err(err).Str("enrollmentId", body.EnrollmentID).Msg("link issuance failed")
			writeJSONError(w, "server_error", "Failed to issue link", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(issueLinkResponse{
			Link:      link,
			MagicURL:  RouteContentMagic + "?link=" + link,
			ExpiresIn: int(ttl.Seconds()),
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
