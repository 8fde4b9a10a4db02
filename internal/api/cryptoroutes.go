package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openbiocards/biocard-core/internal/crypto"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// establishSessionRequest is the request body for POST /api/crypto/establish-session.
type establishSessionRequest struct {
	KeyID        string `json:"keyId"`
	EncryptedKey string `json:"encryptedAESKey"`
}

// handlePublicKey advertises an RSA public key for the handshake: the
// current key by default, or a named retained generation via ?keyId=.
func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	var pub *crypto.PublicKey
	var err error
	if keyID := r.URL.Query().Get("keyId"); keyID != "" {
		pub, err = s.crypto.PublicKey(keyID)
		if errors.Is(err, crypto.ErrKeyNotFound) {
			s.writeNotFound(w, "key not found or rotated out")
			return
		}
	} else {
		pub, err = s.crypto.CurrentKey()
	}
	if err != nil {
		s.logger.Error("reading public key failed", "error", err)
		s.writeInternalError(w, "key exchange unavailable")
		return
	}

	writeJSON(w, http.StatusOK, pub)
}

// handleEstablishSession completes the key exchange: the client submits
// its session key wrapped with the advertised RSA public key.
func (s *Server) handleEstablishSession(w http.ResponseWriter, r *http.Request) {
	var req establishSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.KeyID == "" || req.EncryptedKey == "" {
		s.writeBadRequest(w, "keyId and encryptedAESKey are required")
		return
	}

	sessionID, err := s.crypto.EstablishSession(req.KeyID, req.EncryptedKey)
	if err != nil {
		switch {
		case errors.Is(err, crypto.ErrKeyNotFound):
			s.monitor.RecordEvent("handshake_stale_key", telemetry.SeverityInfo,
				"handshake against rotated-out key "+req.KeyID)
			s.writeNotFound(w, "key not found or rotated out")
		case errors.Is(err, crypto.ErrInvalidPayload):
			s.monitor.RecordEvent("handshake_rejected", telemetry.SeverityWarning,
				"malformed session key from "+clientIP(r))
			s.writeBadRequest(w, "invalid session key")
		default:
			s.logger.Error("establishing session failed", "error", err)
			s.writeInternalError(w, "failed to establish session")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": sessionID})
}

// handleClientToken mints an anti-replay client token for the encrypted
// surface. Tokens are short-lived and verified on every encrypted request.
func (s *Server) handleClientToken(w http.ResponseWriter, _ *http.Request) {
	token, err := s.clientTokens.Generate()
	if err != nil {
		s.logger.Error("generating client token failed", "error", err)
		s.writeInternalError(w, "failed to generate client token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"clientToken": token})
}
