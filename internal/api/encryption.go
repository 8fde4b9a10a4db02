package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/openbiocards/biocard-core/internal/crypto"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// plaintextPrefixes lists the API subtrees exchanged in the clear. Any
// other /api route carries end-to-end encrypted payloads. The table is
// the single source of truth; adding a route to the encrypted surface
// means not listing it here.
var plaintextPrefixes = []string{
	"/api/health",
	"/api/crypto",
	"/api/init",
	"/api/auth",
	"/api/admin",
	"/api/user",
}

// isEncryptedRoute reports whether a path belongs to the encrypted surface.
func isEncryptedRoute(path string) bool {
	if path != "/api" && !strings.HasPrefix(path, "/api/") {
		return false
	}
	for _, prefix := range plaintextPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return false
		}
	}
	return true
}

// clientTokenHeader carries the anti-replay token on encrypted routes.
const clientTokenHeader = "X-Client-Token"

// keyIDHeader selects the session key for body-less encrypted requests.
const keyIDHeader = "X-Key-ID"

// encryptionMiddleware enforces the end-to-end encryption contract on
// the encrypted surface: a valid client token on every request, an
// encrypted request body where one is present, and encryption of every
// successful response. Error responses are never encrypted so clients
// can always read the code.
func (s *Server) encryptionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isEncryptedRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		s.monitor.RecordEncrypted()

		if err := s.clientTokens.Verify(r.Header.Get(clientTokenHeader)); err != nil {
			s.monitor.RecordEvent("client_token_rejected", telemetry.SeverityWarning,
				"client token rejected on "+r.URL.Path+" from "+clientIP(r))
			s.writeError(w, http.StatusBadRequest, CodeProcessingError, "Request validation failed")
			return
		}

		keyID := r.Header.Get(keyIDHeader)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, CodeProcessingError, "Request validation failed")
			return
		}
		r.Body.Close()

		if len(body) > 0 {
			var env crypto.Envelope
			if err := json.Unmarshal(body, &env); err != nil {
				s.writeError(w, http.StatusBadRequest, CodeDecryptionError, "Decryption failed")
				return
			}
			plaintext, err := s.crypto.Decrypt(&env)
			if err != nil {
				s.monitor.RecordEvent("decryption_error", telemetry.SeverityWarning,
					"request decryption failed on "+r.URL.Path+": "+err.Error())
				s.writeError(w, http.StatusBadRequest, CodeDecryptionError, "Decryption failed")
				return
			}
			keyID = env.KeyID
			r.Body = io.NopCloser(bytes.NewReader(plaintext))
			r.ContentLength = int64(len(plaintext))
		}

		buffered := &bufferingWriter{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(buffered, r)

		// Errors pass through in the clear.
		if buffered.status >= 400 {
			copyHeader(w.Header(), buffered.header)
			w.WriteHeader(buffered.status)
			w.Write(buffered.buf.Bytes()) //nolint:errcheck // best-effort response write
			return
		}

		if keyID == "" {
			if pk, err := s.crypto.CurrentKey(); err == nil {
				keyID = pk.KeyID
			}
		}
		env, err := s.crypto.Encrypt(keyID, buffered.buf.Bytes())
		if err != nil {
			s.monitor.RecordEvent("encryption_error", telemetry.SeverityCritical,
				"response encryption failed on "+r.URL.Path+": "+err.Error())
			s.writeError(w, http.StatusInternalServerError, CodeProcessingError, "Response encryption failed")
			return
		}
		writeJSON(w, buffered.status, env)
	})
}

// bufferingWriter captures a handler's response so the middleware can
// re-encode it after the handler returns.
type bufferingWriter struct {
	header http.Header
	buf    bytes.Buffer
	status int
}

func (b *bufferingWriter) Header() http.Header { return b.header }

func (b *bufferingWriter) WriteHeader(status int) { b.status = status }

func (b *bufferingWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }

// copyHeader copies response headers, dropping Content-Length which is
// recomputed for the final body.
func copyHeader(dst, src http.Header) {
	for k, values := range src {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
