package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openbiocards/biocard-core/internal/profile"
)

// handleGetProfile returns the caller's profile. Before the first save
// the profile is a default shell around the account's username.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)

	p, err := s.profiles.Get(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("reading profile failed", "error", err, "user_id", user.ID)
		s.writeInternalError(w, "failed to read profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}

// handleUpdateProfile saves the caller's profile fields.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)

	var update profile.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.profiles.Save(r.Context(), user.ID, &update)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidData) {
			s.writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("saving profile failed", "error", err, "user_id", user.ID)
		s.writeInternalError(w, "failed to save profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}

// handleProfileStatus reports whether the caller has completed their profile.
func (s *Server) handleProfileStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)

	p, err := s.profiles.Get(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("reading profile failed", "error", err, "user_id", user.ID)
		s.writeInternalError(w, "failed to read profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initialized": p.IsInitialized,
		"updated_at":  p.UpdatedAt,
	})
}

// handleDeleteAvatar clears the caller's avatar without touching the
// rest of the profile.
func (s *Server) handleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)

	if err := s.profiles.SetAvatar(r.Context(), user.ID, ""); err != nil {
		s.logger.Error("clearing avatar failed", "error", err, "user_id", user.ID)
		s.writeInternalError(w, "failed to clear avatar")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"avatar": ""})
}
