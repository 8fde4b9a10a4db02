package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openbiocards/biocard-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware. The gate runs after the plumbing layers so
	// denials are logged and counted like any other response; the
	// encryption layer runs last, closest to the handlers.
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.gateMiddleware)
	r.Use(s.encryptionMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Reachable regardless of system state
		r.Get("/health", s.handleHealth)

		// Bootstrap
		r.Route("/init", func(r chi.Router) {
			r.Get("/status", s.handleInitStatus)
			r.Post("/setup", s.handleInitSetup)
		})

		// Key exchange
		r.Route("/crypto", func(r chi.Router) {
			r.Get("/public-key", s.handlePublicKey)
			r.Post("/establish-session", s.handleEstablishSession)
			r.Get("/client-token", s.handleClientToken)
		})

		// Authentication
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Get("/me", s.handleMe)
		})

		// Administration: admin tier and up, account deletion root only
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleAdmin))

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.With(s.requireRole(auth.RoleRoot)).Delete("/users/{id}", s.handleDeleteUser)
			r.Get("/status", s.handleAdminStatus)
		})

		// Profile (any authenticated user)
		r.Route("/user", func(r chi.Router) {
			r.Use(s.requireAnyRole(auth.RoleUser, auth.RoleAdmin, auth.RoleRoot))

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Get("/profile/status", s.handleProfileStatus)
			r.Delete("/profile/avatar", s.handleDeleteAvatar)
		})

		// Security telemetry (root only, end-to-end encrypted)
		r.Route("/security", func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleRoot))

			r.Get("/metrics", s.handleSecurityMetrics)
			r.Get("/events", s.handleSecurityEvents)
			r.Post("/reset-metrics", s.handleResetMetrics)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
