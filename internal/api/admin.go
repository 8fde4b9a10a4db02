package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// createUserRequest is the request body for POST /api/admin/users.
type createUserRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

// handleListUsers returns all user accounts. Password hashes never
// serialise; the User type strips them.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users failed", "error", err)
		s.writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleCreateUser creates a new account. Only the non-root roles are
// assignable; the single root account exists from system setup.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		s.writeBadRequest(w, "invalid username")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		s.writeBadRequest(w, "password too short")
		return
	}
	if !auth.IsAssignableRole(req.Role) {
		s.writeBadRequest(w, "invalid role, must be admin or user")
		return
	}

	actor, ok := currentUser(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
		return
	}
	// Admins may add regular users; minting another admin takes root.
	if req.Role == auth.RoleAdmin && !actor.Role.AtLeast(auth.RoleRoot) {
		s.monitor.RecordEvent("admin_creation_blocked", telemetry.SeverityWarning,
			"non-root user "+actor.ID+" attempted to create an admin account")
		s.writeForbidden(w, "only root can create admin accounts")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hashing password failed", "error", err)
		s.writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			s.writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("creating user failed", "error", err)
		s.writeInternalError(w, "failed to create user")
		return
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role, "created_by", actor.ID)

	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// handleDeleteUser removes an account and its profile. The invariants
// are re-checked against live data here, not trusted from the token:
// the caller must still hold root at the moment of deletion, an actor
// cannot delete themselves, and the last root cannot be removed.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	gated, ok := currentUser(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
		return
	}

	// The gate's snapshot may predate a concurrent demotion. Re-read
	// the caller right before acting on their authority.
	actor, err := s.users.GetByID(r.Context(), gated.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			s.writeError(w, http.StatusUnauthorized, CodeUserNotFound, "User not found")
			return
		}
		s.logger.Error("re-reading caller failed", "error", err, "user_id", gated.ID)
		s.writeInternalError(w, "failed to delete user")
		return
	}
	if actor.Role != auth.RoleRoot {
		s.monitor.RecordEvent("stale_privilege_blocked", telemetry.SeverityCritical,
			"user "+actor.ID+" attempted a delete after losing root")
		s.monitor.RecordBlocked()
		s.writeForbidden(w, "Insufficient permissions")
		return
	}

	if actor.ID == id {
		s.writeForbidden(w, "cannot delete own account")
		return
	}

	target, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			s.writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("loading user failed", "error", err, "user_id", id)
		s.writeInternalError(w, "failed to delete user")
		return
	}

	if target.Role == auth.RoleRoot {
		rootCount, err := s.users.CountByRole(r.Context(), auth.RoleRoot)
		if err != nil {
			s.logger.Error("counting root accounts failed", "error", err)
			s.writeInternalError(w, "failed to delete user")
			return
		}
		if rootCount <= 1 {
			s.monitor.RecordEvent("root_deletion_blocked", telemetry.SeverityCritical,
				"attempt to delete the last root account by "+actor.ID)
			s.writeForbidden(w, "cannot delete the last root account")
			return
		}
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			s.writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("deleting user failed", "error", err, "user_id", id)
		s.writeInternalError(w, "failed to delete user")
		return
	}

	// Best-effort: the account row is gone, the profile must not linger.
	if err := s.profiles.Delete(r.Context(), id); err != nil {
		s.logger.Warn("deleting profile after account removal failed", "error", err, "user_id", id)
	}

	s.logger.Info("user deleted", "user_id", id, "deleted_by", actor.ID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleAdminStatus reports system runtime information.
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.system.Status(r.Context())
	if err != nil {
		s.logger.Error("reading system status failed", "error", err)
		s.writeInternalError(w, "failed to read system status")
		return
	}

	total, err := s.users.Count(r.Context())
	if err != nil {
		s.logger.Error("counting users failed", "error", err)
		s.writeInternalError(w, "failed to read system status")
		return
	}

	byRole := make(map[string]int, 3)
	for _, role := range []auth.Role{auth.RoleRoot, auth.RoleAdmin, auth.RoleUser} {
		n, err := s.users.CountByRole(r.Context(), role)
		if err != nil {
			s.logger.Error("counting users by role failed", "error", err, "role", role)
			s.writeInternalError(w, "failed to read system status")
			return
		}
		byRole[string(role)] = n
	}

	hostname, _ := os.Hostname()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"initialized":    cfg.IsInitialized,
		"language":       cfg.Language,
		"user_count":     total,
		"users_by_role":  byRole,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"hostname":       hostname,
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"num_cpu":        runtime.NumCPU(),
		"heap_bytes":     mem.HeapAlloc,
		"key_count":      s.crypto.KeyCount(),
	})
}
