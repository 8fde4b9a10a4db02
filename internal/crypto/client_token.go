package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const clientTokenParts = 3

// Client token errors.
var (
	ErrClientTokenInvalid = errors.New("invalid client token")
	ErrClientTokenExpired = errors.New("client token expired")
)

// ClientTokenIssuer mints and verifies short-lived HMAC tokens that
// browsers must present before any encrypted exchange. The wire format
// is base64("token:timestamp:signature") where signature is the hex
// HMAC-SHA256 of "token:timestamp".
type ClientTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewClientTokenIssuer creates an issuer. A zero ttl defaults to 5 minutes.
func NewClientTokenIssuer(secret string, ttl time.Duration) *ClientTokenIssuer {
	if ttl <= 0 {
		ttl = 5 * time.Minute //nolint:mnd // default client token lifetime
	}
	return &ClientTokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Generate mints a fresh client token.
func (i *ClientTokenIssuer) Generate() (string, error) {
	token, err := randomHex(16) //nolint:mnd // 128-bit token
	if err != nil {
		return "", fmt.Errorf("generating client token: %w", err)
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := i.sign(token, timestamp)

	payload := token + ":" + timestamp + ":" + signature
	return base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Verify checks a client token's signature and age. Tampered or
// malformed tokens return ErrClientTokenInvalid; correctly signed but
// stale tokens return ErrClientTokenExpired.
func (i *ClientTokenIssuer) Verify(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClientTokenInvalid, err)
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != clientTokenParts {
		return ErrClientTokenInvalid
	}
	token, timestamp, signature := parts[0], parts[1], parts[2]

	expected := i.sign(token, timestamp)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrClientTokenInvalid
	}

	issuedMilli, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClientTokenInvalid, err)
	}

	age := time.Since(time.UnixMilli(issuedMilli))
	if age < 0 {
		age = -age
	}
	if age > i.ttl {
		return ErrClientTokenExpired
	}
	return nil
}

func (i *ClientTokenIssuer) sign(token, timestamp string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(token + ":" + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
