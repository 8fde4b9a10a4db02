package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/system"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// setupRequest is the request body for POST /api/init/setup.
type setupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Language string `json:"language"`
}

// handleInitStatus reports whether first-time setup has completed.
func (s *Server) handleInitStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.system.Status(r.Context())
	if err != nil {
		s.logger.Error("reading system status failed", "error", err)
		s.writeInternalError(w, "failed to read system status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initialized": cfg.IsInitialized,
		"language":    cfg.Language,
	})
}

// handleInitSetup performs one-time system initialisation: it creates
// the root account and closes the setup endpoint forever. The access
// gate already rejects this route on an initialised system; the service
// re-checks under its own state read so a race cannot mint two roots.
func (s *Server) handleInitSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	root, err := s.system.Setup(r.Context(), req.Username, req.Password, req.Language)
	if err != nil {
		if errors.Is(err, system.ErrAlreadyInitialized) {
			s.writeError(w, http.StatusForbidden, CodeEndpointNotAvailable, "Endpoint not available")
			return
		}
		if errors.Is(err, auth.ErrUsernameExists) {
			s.writeConflict(w, "username already exists")
			return
		}
		s.writeBadRequest(w, err.Error())
		return
	}

	s.monitor.RecordEvent("system_initialized", telemetry.SeverityInfo, "root account "+root.Username+" created")

	token, err := auth.GenerateToken(root, s.secCfg.JWT.Secret, s.tokenTTL())
	if err != nil {
		s.logger.Error("generating token after setup failed", "error", err)
		s.writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  root,
		"token": token,
	})
}
