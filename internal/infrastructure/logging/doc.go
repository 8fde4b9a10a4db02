// Package logging provides structured logging for BioCard Core.
//
// It wraps log/slog with configuration-driven setup: output format
// (JSON for production, text for development), level filtering, and
// default service/version attributes on every record.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("server started", "port", 3001)
//
//	authLog := log.With("component", "auth")
//	authLog.Warn("login failed", "username", username)
//
// Before configuration is loaded, use logging.Default() for early
// startup messages.
package logging
