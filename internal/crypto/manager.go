package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
)

const (
	rsaKeyBits    = 2048
	sessionKeyLen = 32 // AES-256
	gcmNonceLen   = 12
	sessionIDLen  = 16
	defaultRotate = 5 * time.Minute
	defaultRetain = 10
	defaultFresh  = 30 * time.Second
)

// Sentinel errors for envelope and handshake failures.
var (
	ErrKeyNotFound    = errors.New("encryption key not found or rotated out")
	ErrNoSession      = errors.New("no session established for key")
	ErrStalePayload   = errors.New("payload timestamp outside freshness window")
	ErrInvalidPayload = errors.New("malformed encrypted payload")
	ErrClosed         = errors.New("crypto manager is closed")
)

// Envelope is the wire format for an encrypted payload. Data carries
// base64(nonce || ciphertext); Timestamp is milliseconds since epoch.
type Envelope struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	KeyID     string `json:"keyId"`
}

// PublicKey is the handshake advertisement for the current key.
type PublicKey struct {
	KeyID        string `json:"keyId"`
	PublicKeyPEM string `json:"publicKey"`
}

// Config holds the tunables for a Manager. Zero values fall back to the
// production defaults.
type Config struct {
	RotationInterval time.Duration
	KeyRetention     int
	FreshnessWindow  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RotationInterval <= 0 {
		c.RotationInterval = defaultRotate
	}
	if c.KeyRetention <= 0 {
		c.KeyRetention = defaultRetain
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = defaultFresh
	}
	return c
}

// keyEntry is one generation of the key ring. session is nil until a
// client completes the handshake against this key.
type keyEntry struct {
	id        string
	private   *rsa.PrivateKey
	publicPEM string
	createdAt time.Time
	session   []byte
}

// keyRing is the immutable snapshot readers see. Mutators copy it and
// swap the pointer.
type keyRing struct {
	currentID string
	entries   map[string]*keyEntry
}

// Manager owns the rotating key ring and performs envelope encryption.
// All methods are safe for concurrent use.
type Manager struct {
	cfg Config
	log *logging.Logger

	ring atomic.Pointer[keyRing]
	mu   sync.Mutex // serialises ring mutations

	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewManager creates a Manager. Start must be called before use.
func NewManager(cfg Config, log *logging.Logger) *Manager {
	return &Manager{
		cfg:  cfg.withDefaults(),
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start generates the initial key pair and begins the rotation loop.
func (m *Manager) Start() error {
	entry, err := generateKey()
	if err != nil {
		return fmt.Errorf("generating initial key: %w", err)
	}

	m.ring.Store(&keyRing{
		currentID: entry.id,
		entries:   map[string]*keyEntry{entry.id: entry},
	})
	m.log.Info("encryption key ring initialized", "key_id", entry.id,
		"rotation_interval", m.cfg.RotationInterval.String())

	go m.rotationLoop()
	return nil
}

// Close stops the rotation loop and discards all key material.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.stop)
	<-m.done

	m.mu.Lock()
	m.ring.Store(&keyRing{entries: map[string]*keyEntry{}})
	m.mu.Unlock()
	return nil
}

func (m *Manager) rotationLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.RotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Rotate(); err != nil {
				m.log.Error("key rotation failed", "error", err)
			}
		case <-m.stop:
			return
		}
	}
}

// Rotate generates a fresh key pair, makes it current, and evicts the
// oldest keys beyond the retention window. Sessions bound to retained
// keys keep working until their key ages out.
func (m *Manager) Rotate() error {
	if m.closed.Load() {
		return ErrClosed
	}

	entry, err := generateKey()
	if err != nil {
		return fmt.Errorf("generating rotation key: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.ring.Load()
	entries := make(map[string]*keyEntry, len(old.entries)+1)
	for id, e := range old.entries {
		entries[id] = e
	}
	entries[entry.id] = entry

	evicted := evictOldest(entries, m.cfg.KeyRetention)

	m.ring.Store(&keyRing{currentID: entry.id, entries: entries})

	m.log.Debug("encryption key rotated", "key_id", entry.id,
		"retained", len(entries), "evicted", evicted)
	return nil
}

// evictOldest trims entries down to keep, removing oldest first.
// Returns the number of evicted keys.
func evictOldest(entries map[string]*keyEntry, keep int) int {
	if len(entries) <= keep {
		return 0
	}

	all := make([]*keyEntry, 0, len(entries))
	for _, e := range entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	evicted := 0
	for _, e := range all[:len(all)-keep] {
		delete(entries, e.id)
		evicted++
	}
	return evicted
}

// CurrentKey returns the handshake advertisement for the current key.
func (m *Manager) CurrentKey() (*PublicKey, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	ring := m.ring.Load()
	entry, ok := ring.entries[ring.currentID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &PublicKey{KeyID: entry.id, PublicKeyPEM: entry.publicPEM}, nil
}

// PublicKey returns the advertisement for a named key generation, or
// ErrKeyNotFound once that generation has been evicted.
func (m *Manager) PublicKey(keyID string) (*PublicKey, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	entry, ok := m.ring.Load().entries[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &PublicKey{KeyID: entry.id, PublicKeyPEM: entry.publicPEM}, nil
}

// EstablishSession completes the handshake for keyID: the client sends
// its AES-256 session key encrypted with our RSA public key (OAEP with
// SHA-256). The session key is bound to that key generation only. The
// returned session ID is an opaque receipt for the client.
func (m *Manager) EstablishSession(keyID, encryptedKey string) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.ring.Load()
	entry, ok := old.entries[keyID]
	if !ok {
		return "", ErrKeyNotFound
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, entry.private, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(sessionKey) != sessionKeyLen {
		return "", fmt.Errorf("%w: session key must be %d bytes, got %d", ErrInvalidPayload, sessionKeyLen, len(sessionKey))
	}

	sessionID, err := randomHex(sessionIDLen)
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	// Copy-on-write: only this generation gets the session key.
	entries := make(map[string]*keyEntry, len(old.entries))
	for id, e := range old.entries {
		entries[id] = e
	}
	bound := *entry
	bound.session = sessionKey
	entries[keyID] = &bound

	m.ring.Store(&keyRing{currentID: old.currentID, entries: entries})

	m.log.Debug("encryption session established", "key_id", keyID, "session_id", sessionID)
	return sessionID, nil
}

// Encrypt seals plaintext under the session key bound to keyID.
func (m *Manager) Encrypt(keyID string, plaintext []byte) (*Envelope, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	entry, ok := m.ring.Load().entries[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if entry.session == nil {
		return nil, ErrNoSession
	}

	gcm, err := newGCM(entry.session)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return &Envelope{
		Data:      base64.StdEncoding.EncodeToString(sealed),
		Timestamp: time.Now().UnixMilli(),
		KeyID:     keyID,
	}, nil
}

// Decrypt opens an envelope: the timestamp must fall inside the
// freshness window, the key must still be retained, and a session must
// have been established against it.
func (m *Manager) Decrypt(env *Envelope) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	age := time.Since(time.UnixMilli(env.Timestamp))
	if age < 0 {
		age = -age
	}
	if age > m.cfg.FreshnessWindow {
		return nil, ErrStalePayload
	}

	entry, ok := m.ring.Load().entries[env.KeyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if entry.session == nil {
		return nil, ErrNoSession
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(sealed) < gcmNonceLen {
		return nil, ErrInvalidPayload
	}

	gcm, err := newGCM(entry.session)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, sealed[:gcmNonceLen], sealed[gcmNonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return plaintext, nil
}

// KeyCount returns the number of retained key generations.
func (m *Manager) KeyCount() int {
	return len(m.ring.Load().entries)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// generateKey creates a new RSA-2048 key generation with a PKIX PEM
// public key suitable for WebCrypto import.
func generateKey() (*keyEntry, error) {
	private, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))

	return &keyEntry{
		id:        "key-" + uuid.NewString(),
		private:   private,
		publicPEM: publicPEM,
		createdAt: time.Now(),
	}, nil
}
