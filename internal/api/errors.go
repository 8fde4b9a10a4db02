package api

import (
	"encoding/json"
	"net/http"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Stable error codes. These form the client contract: clients branch on
// the code, never on the message text.
const (
	CodeSystemNotInitialized = "SYSTEM_NOT_INITIALIZED"
	CodeEndpointNotAvailable = "ENDPOINT_NOT_AVAILABLE"
	CodeAuthRequired         = "AUTH_REQUIRED"
	CodeAuthInvalid          = "AUTH_INVALID"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUserDataMismatch     = "USER_DATA_MISMATCH"
	CodeAccessControlError   = "ACCESS_CONTROL_ERROR"
	CodeProcessingError      = "PROCESSING_ERROR"
	CodeDecryptionError      = "DECRYPTION_ERROR"
	CodeValidationError      = "VALIDATION_ERROR"
	CodeConflict             = "CONFLICT"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response and tallies the code.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	if s.monitor != nil {
		s.monitor.RecordError(code)
	}
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 validation error response.
func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusBadRequest, CodeValidationError, message)
}

// writeNotFound writes a 404 error response.
func (s *Server) writeNotFound(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusNotFound, CodeNotFound, message)
}

// writeForbidden writes a 403 error response.
func (s *Server) writeForbidden(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusForbidden, CodeForbidden, message)
}

// writeConflict writes a 409 error response.
func (s *Server) writeConflict(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusConflict, CodeConflict, message)
}

// writeInternalError writes a 500 error response.
func (s *Server) writeInternalError(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusInternalServerError, CodeProcessingError, message)
}
