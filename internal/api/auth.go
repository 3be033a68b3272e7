package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/upswatch/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleLogin exchanges a user name and password for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.secCfg.JWT.Secret == "" || s.users.Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no API users are configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("authenticating user", "user", req.Username, "error", err)
		}
		s.logger.Warn("login failed", "user", req.Username, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	token, expires, err := auth.GenerateToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing token", "user", user.Name, "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.logger.Info("user logged in", "user", user.Name, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires.UTC(),
	})
}
