package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// routeClass partitions the API surface for the access gate and for
// telemetry. Classification is by path only; the gate decides per class.
type routeClass string

const (
	classHealth     routeClass = "health"
	classSetup      routeClass = "setup"
	classInitStatus routeClass = "init_status"
	classCrypto     routeClass = "crypto"
	classAuth       routeClass = "auth"
	classOther      routeClass = "other"
)

// routePattern maps a path prefix (or exact path) to a class. The table
// is checked in order; first match wins.
type routePattern struct {
	path  string
	exact bool
	class routeClass
}

var routeTable = []routePattern{
	{path: "/api/health", exact: true, class: classHealth},
	{path: "/api/init/status", exact: true, class: classInitStatus},
	{path: "/api/init", class: classSetup},
	{path: "/api/crypto", class: classCrypto},
	{path: "/api/auth", class: classAuth},
}

// classifyRoute returns the class of a request path.
func classifyRoute(path string) routeClass {
	for _, p := range routeTable {
		if p.exact {
			if path == p.path {
				return p.class
			}
			continue
		}
		if path == p.path || strings.HasPrefix(path, p.path+"/") {
			return p.class
		}
	}
	return classOther
}

// preAuthClasses may be reached without a verified identity once the
// system is initialised.
var preAuthClasses = map[routeClass]bool{
	classAuth:       true,
	classInitStatus: true,
	classCrypto:     true,
}

// gateMiddleware is the system-wide access gate. It re-reads the
// initialisation state on every request (never cached) and walks an
// ordered series of checks:
//
//  1. health is always reachable
//  2. setup is permanently closed once initialised
//  3. an uninitialised system exposes only setup, status and handshake
//  4. all other routes require a bearer identity that still matches the
//     database record (username and role), not just a valid signature
//
// Requests that pass with a verified identity carry it in the context.
func (s *Server) gateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := classifyRoute(r.URL.Path)

		if class == classHealth {
			next.ServeHTTP(w, r)
			return
		}

		cfg, err := s.system.Status(r.Context())
		if err != nil {
			s.logger.Error("access gate: reading system state failed", "error", err)
			// Degraded mode: only the surfaces needed to diagnose and
			// recover stay open.
			if class == classAuth || class == classInitStatus {
				next.ServeHTTP(w, r)
				return
			}
			s.denyRequest(w, http.StatusInternalServerError, CodeAccessControlError, "Access control failed")
			return
		}

		if cfg.IsInitialized && class == classSetup {
			s.monitor.RecordEvent("setup_probe", telemetry.SeverityCritical,
				"attempt to access disabled initialization endpoint from "+clientIP(r))
			s.denyRequest(w, http.StatusForbidden, CodeEndpointNotAvailable, "Endpoint not available")
			return
		}

		if !cfg.IsInitialized {
			if class == classSetup || class == classInitStatus || class == classCrypto {
				next.ServeHTTP(w, r)
				return
			}
			s.denyRequest(w, http.StatusServiceUnavailable, CodeSystemNotInitialized, "System not initialized")
			return
		}

		token := bearerToken(r)
		if token == "" {
			if preAuthClasses[class] {
				next.ServeHTTP(w, r)
				return
			}
			s.denyRequest(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
			return
		}

		claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			if class == classAuth || class == classInitStatus {
				next.ServeHTTP(w, r)
				return
			}
			s.monitor.RecordEvent("auth_failure", telemetry.SeverityWarning, "invalid bearer token from "+clientIP(r))
			s.denyRequest(w, http.StatusUnauthorized, CodeAuthInvalid, "Invalid authentication")
			return
		}

		user, err := s.users.GetByID(r.Context(), claims.Subject)
		if err != nil {
			if class == classAuth || class == classInitStatus {
				next.ServeHTTP(w, r)
				return
			}
			if errors.Is(err, auth.ErrUserNotFound) {
				s.denyRequest(w, http.StatusUnauthorized, CodeUserNotFound, "User not found")
				return
			}
			s.logger.Error("access gate: reading user record failed", "error", err, "user_id", claims.Subject)
			s.denyRequest(w, http.StatusInternalServerError, CodeAccessControlError, "Access control failed")
			return
		}

		// The token is advisory: the live record must still agree.
		if user.Username != claims.Username || user.Role != claims.Role {
			if class == classAuth || class == classInitStatus {
				next.ServeHTTP(w, r)
				return
			}
			s.monitor.RecordEvent("identity_mismatch", telemetry.SeverityCritical,
				"token claims diverge from stored record for user "+user.ID)
			s.denyRequest(w, http.StatusForbidden, CodeUserDataMismatch, "User data mismatch")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// denyRequest counts an access-control rejection and writes the error.
func (s *Server) denyRequest(w http.ResponseWriter, status int, code, message string) {
	s.monitor.RecordBlocked()
	s.writeError(w, status, code, message)
}

// requireRole rejects requests whose verified identity ranks below min.
func (s *Server) requireRole(min auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := currentUser(r)
			if !ok {
				s.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
				return
			}
			if !user.Role.AtLeast(min) {
				s.monitor.RecordEvent("access_denied", telemetry.SeverityWarning,
					"user "+user.ID+" lacks role "+string(min)+" for "+r.URL.Path)
				s.monitor.RecordBlocked()
				s.writeForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAnyRole rejects requests whose identity holds none of the roles.
func (s *Server) requireAnyRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := currentUser(r)
			if !ok {
				s.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			s.monitor.RecordEvent("access_denied", telemetry.SeverityWarning,
				"user "+user.ID+" outside allowed roles for "+r.URL.Path)
			s.monitor.RecordBlocked()
			s.writeForbidden(w, "Insufficient permissions")
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// currentUser returns the verified identity stored by the gate.
func currentUser(r *http.Request) (*auth.User, bool) {
	user, ok := r.Context().Value(ctxKeyUser).(*auth.User)
	return user, ok
}

// clientIP returns the remote address for security logging.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
