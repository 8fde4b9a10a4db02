package api

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/crypto"
	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// handshake plays the browser side of the key exchange against the
// running server and returns the key ID and raw session key.
func (e *testEnv) handshake(t *testing.T) (keyID string, sessionKey []byte) {
	t.Helper()

	rec := e.do(t, http.MethodGet, "/api/crypto/public-key", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public-key status = %d", rec.Code)
	}
	var pub crypto.PublicKey
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decoding public key: %v", err)
	}

	block, _ := pem.Decode([]byte(pub.PublicKeyPEM))
	if block == nil {
		t.Fatal("public key PEM did not decode")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		t.Fatalf("parsing public key: %v", err)
	}
	rsaPub := parsed.(*rsa.PublicKey)

	sessionKey = make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatalf("generating session key: %v", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, sessionKey, nil)
	if err != nil {
		t.Fatalf("wrapping session key: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/api/crypto/establish-session", "", map[string]any{
		"keyId":           pub.KeyID,
		"encryptedAESKey": base64.StdEncoding.EncodeToString(wrapped),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("establish-session status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var established struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &established); err != nil {
		t.Fatalf("decoding establish-session response: %v", err)
	}
	if !established.Success || established.SessionID == "" {
		t.Fatalf("establish-session response = %s", rec.Body.String())
	}

	return pub.KeyID, sessionKey
}

// openEnvelope decrypts a response envelope with the session key.
func openEnvelope(t *testing.T, body []byte, sessionKey []byte) []byte {
	t.Helper()

	var env crypto.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decoding envelope %q: %v", body, err)
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		t.Fatalf("decoding envelope data: %v", err)
	}

	blockCipher, err := aes.NewCipher(sessionKey)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		t.Fatalf("creating GCM: %v", err)
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		t.Fatalf("opening envelope: %v", err)
	}
	return plaintext
}

// doEncrypted performs a request against the encrypted surface.
func (e *testEnv) doEncrypted(t *testing.T, method, path, bearer, clientToken, keyID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if clientToken != "" {
		req.Header.Set(clientTokenHeader, clientToken)
	}
	if keyID != "" {
		req.Header.Set(keyIDHeader, keyID)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestEncryptedSurface_RequiresClientToken(t *testing.T) {
	env := testServer(t)
	rootToken := env.initialize(t)

	rec := env.doEncrypted(t, http.MethodGet, "/api/security/metrics", rootToken, "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeProcessingError {
		t.Errorf("code = %q, want %q", code, CodeProcessingError)
	}
}

func TestEncryptedSurface_MetricsRoundTrip(t *testing.T) {
	env := testServer(t)
	rootToken := env.initialize(t)
	keyID, sessionKey := env.handshake(t)

	clientToken, err := env.tokens.Generate()
	if err != nil {
		t.Fatalf("generating client token: %v", err)
	}

	rec := env.doEncrypted(t, http.MethodGet, "/api/security/metrics", rootToken, clientToken, keyID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	plaintext := openEnvelope(t, rec.Body.Bytes(), sessionKey)
	var resp struct {
		Metrics telemetry.Snapshot `json:"metrics"`
	}
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		t.Fatalf("decoding decrypted metrics: %v", err)
	}
	if resp.Metrics.TotalRequests == 0 {
		t.Error("metrics should count the requests made so far")
	}
}

func TestSecurityEvents_HoursWindow(t *testing.T) {
	env := testServer(t)
	rootToken := env.initialize(t)
	keyID, sessionKey := env.handshake(t)

	env.monitor.RecordEvent("auth_failure", telemetry.SeverityWarning, "probe")

	clientToken, err := env.tokens.Generate()
	if err != nil {
		t.Fatalf("generating client token: %v", err)
	}

	rec := env.doEncrypted(t, http.MethodGet, "/api/security/events?hours=5", rootToken, clientToken, keyID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	plaintext := openEnvelope(t, rec.Body.Bytes(), sessionKey)
	var resp struct {
		Events    []telemetry.Event `json:"events"`
		Count     int               `json:"count"`
		TimeRange string            `json:"timeRange"`
	}
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		t.Fatalf("decoding decrypted events: %v", err)
	}
	if resp.TimeRange != "5 hours" {
		t.Errorf("timeRange = %q, want %q", resp.TimeRange, "5 hours")
	}
	if resp.Count != len(resp.Events) || resp.Count == 0 {
		t.Errorf("count = %d, events = %d", resp.Count, len(resp.Events))
	}

	// A bad window is rejected before any telemetry is read.
	rec = env.doEncrypted(t, http.MethodGet, "/api/security/events?hours=zero", rootToken, clientToken, keyID)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad hours status = %d, want 400", rec.Code)
	}
}

func TestEncryptedSurface_ErrorsStayPlain(t *testing.T) {
	env := testServer(t)
	env.initialize(t)
	keyID, _ := env.handshake(t)

	env.seedUser(t, "pleb", "pleb-password", auth.RoleUser)
	userToken := env.login(t, "pleb", "pleb-password")

	clientToken, err := env.tokens.Generate()
	if err != nil {
		t.Fatalf("generating client token: %v", err)
	}

	// Non-root hits the role gate; the denial must be readable plaintext.
	rec := env.doEncrypted(t, http.MethodGet, "/api/security/metrics", userToken, clientToken, keyID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeForbidden {
		t.Errorf("code = %q, want %q", code, CodeForbidden)
	}
}

func TestEncryptedSurface_NoSessionFailsClosed(t *testing.T) {
	env := testServer(t)
	rootToken := env.initialize(t)

	// Valid client token but no handshake: the response cannot be
	// encrypted, so nothing leaks in the clear.
	clientToken, err := env.tokens.Generate()
	if err != nil {
		t.Fatalf("generating client token: %v", err)
	}

	rec := env.doEncrypted(t, http.MethodGet, "/api/security/metrics", rootToken, clientToken, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeProcessingError {
		t.Errorf("code = %q, want %q", code, CodeProcessingError)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("total_requests")) {
		t.Error("telemetry leaked in plaintext")
	}
}

func TestEncryptedSurface_ResetMetrics(t *testing.T) {
	env := testServer(t)
	rootToken := env.initialize(t)
	keyID, sessionKey := env.handshake(t)

	env.do(t, http.MethodGet, "/api/health", "", nil)

	clientToken, err := env.tokens.Generate()
	if err != nil {
		t.Fatalf("generating client token: %v", err)
	}

	rec := env.doEncrypted(t, http.MethodPost, "/api/security/reset-metrics", rootToken, clientToken, keyID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	plaintext := openEnvelope(t, rec.Body.Bytes(), sessionKey)
	if !bytes.Contains(plaintext, []byte(`"reset":true`)) {
		t.Errorf("decrypted body = %s", plaintext)
	}

	snap := env.monitor.Metrics()
	if snap.TotalRequests > 1 {
		t.Errorf("TotalRequests after reset = %d", snap.TotalRequests)
	}
}

func TestEstablishSession_UnknownKey(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodPost, "/api/crypto/establish-session", "", map[string]any{
		"keyId":           "key-nonexistent",
		"encryptedAESKey": base64.StdEncoding.EncodeToString([]byte("junk")),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPublicKey_NamedLookup(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/crypto/public-key", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public-key status = %d", rec.Code)
	}
	var pub crypto.PublicKey
	if err := json.Unmarshal(rec.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decoding public key: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/crypto/public-key?keyId="+pub.KeyID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("named lookup status = %d", rec.Code)
	}
	var named crypto.PublicKey
	if err := json.Unmarshal(rec.Body.Bytes(), &named); err != nil {
		t.Fatalf("decoding named key: %v", err)
	}
	if named.KeyID != pub.KeyID || named.PublicKeyPEM != pub.PublicKeyPEM {
		t.Error("named lookup returned a different key")
	}

	rec = env.do(t, http.MethodGet, "/api/crypto/public-key?keyId=key-gone", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("evicted key status = %d, want 404", rec.Code)
	}
}

func TestClientTokenEndpoint(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/crypto/client-token", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		ClientToken string `json:"clientToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding client token: %v", err)
	}
	if err := env.tokens.Verify(resp.ClientToken); err != nil {
		t.Errorf("minted token does not verify: %v", err)
	}
}
