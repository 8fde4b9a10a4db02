package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// loginRequest is the request body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/auth/login.
type loginResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int        `json:"expires_in"`
	User      *auth.User `json:"user"`
}

// tokenTTL returns the configured bearer token lifetime.
func (s *Server) tokenTTL() time.Duration {
	return time.Duration(s.secCfg.JWT.TokenTTLHours) * time.Hour
}

// handleLogin authenticates a user and returns a JWT bearer token.
//
// Unknown usernames and wrong passwords produce the identical response;
// the endpoint never reveals which half of the credential failed.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.monitor.RecordEvent("auth_failure", telemetry.SeverityWarning,
			"failed login for username "+req.Username+" from "+clientIP(r))
		s.writeError(w, http.StatusUnauthorized, CodeAuthInvalid, "Invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user, s.secCfg.JWT.Secret, s.tokenTTL())
	if err != nil {
		s.logger.Error("generating token failed", "error", err, "user_id", user.ID)
		s.writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenTTL().Seconds()),
		User:      user,
	})
}

// handleMe returns the verified identity for the presented token. The
// gate lets /api/auth routes through without identity so login works;
// this handler therefore enforces it locally.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
