package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClientToken_RoundTrip(t *testing.T) {
	issuer := NewClientTokenIssuer("test-client-secret", time.Minute)

	token, err := issuer.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := issuer.Verify(token); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestClientToken_Expired(t *testing.T) {
	issuer := NewClientTokenIssuer("test-client-secret", time.Minute)

	// Forge a correctly signed token with an old timestamp.
	timestamp := "1700000000000"
	signature := issuer.sign("deadbeef", timestamp)
	stale := base64.StdEncoding.EncodeToString([]byte("deadbeef:" + timestamp + ":" + signature))

	if err := issuer.Verify(stale); !errors.Is(err, ErrClientTokenExpired) {
		t.Errorf("error = %v, want ErrClientTokenExpired", err)
	}
}

func TestClientToken_Tampered(t *testing.T) {
	issuer := NewClientTokenIssuer("test-client-secret", time.Minute)

	token, err := issuer.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	decoded, _ := base64.StdEncoding.DecodeString(token)
	parts := strings.SplitN(string(decoded), ":", 3)
	forged := base64.StdEncoding.EncodeToString([]byte("0000" + parts[0][4:] + ":" + parts[1] + ":" + parts[2]))

	if err := issuer.Verify(forged); !errors.Is(err, ErrClientTokenInvalid) {
		t.Errorf("error = %v, want ErrClientTokenInvalid", err)
	}
}

func TestClientToken_WrongSecret(t *testing.T) {
	minted := NewClientTokenIssuer("secret-one", time.Minute)
	checker := NewClientTokenIssuer("secret-two", time.Minute)

	token, err := minted.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := checker.Verify(token); !errors.Is(err, ErrClientTokenInvalid) {
		t.Errorf("error = %v, want ErrClientTokenInvalid", err)
	}
}

func TestClientToken_Malformed(t *testing.T) {
	issuer := NewClientTokenIssuer("test-client-secret", time.Minute)

	cases := []string{
		"",
		"not base64!!!",
		base64.StdEncoding.EncodeToString([]byte("only-one-part")),
		base64.StdEncoding.EncodeToString([]byte("two:parts")),
	}
	for _, tok := range cases {
		if err := issuer.Verify(tok); !errors.Is(err, ErrClientTokenInvalid) {
			t.Errorf("Verify(%q) error = %v, want ErrClientTokenInvalid", tok, err)
		}
	}
}
