package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE failed: %v", err)
	}

	// 32 bytes encodes to 43 base64url characters without padding.
	if len(verifier) != 43 {
		t.Errorf("Expected verifier length 43, got %d", len(verifier))
	}
	if len(challenge) != 43 {
		t.Errorf("Expected challenge length 43, got %d", len(challenge))
	}

	// No padding or URL-unsafe characters.
	for _, s := range []string{verifier, challenge} {
		if strings.ContainsAny(s, "=+/") {
			t.Errorf("Expected base64url without padding, got %q", s)
		}
	}

	// Challenge must be SHA256(verifier), base64url.
	hash := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if challenge != expected {
		t.Errorf("Challenge mismatch: got %q, want %q", challenge, expected)
	}
}

func TestGeneratePKCE_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		verifier, _, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE failed: %v", err)
		}
		if seen[verifier] {
			t.Fatal("Generated duplicate verifier")
		}
		seen[verifier] = true
	}
}

func TestVerifyChallenge(t *testing.T) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE failed: %v", err)
	}

	if !VerifyChallenge(verifier, challenge) {
		t.Error("Expected matching verifier to verify")
	}

	// A validly-formed but different verifier must fail.
	otherVerifier, _, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE failed: %v", err)
	}
	if VerifyChallenge(otherVerifier, challenge) {
		t.Error("Expected different verifier to fail verification")
	}

	if VerifyChallenge("", challenge) {
		t.Error("Expected empty verifier to fail verification")
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState failed: %v", err)
	}

	if len(state) < 32 {
		t.Errorf("Expected state of at least 32 characters, got %d", len(state))
	}

	decoded, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		t.Fatalf("State is not valid base64url: %v", err)
	}
	if len(decoded) < 32 {
		t.Errorf("Expected at least 32 bytes of randomness, got %d", len(decoded))
	}
}

func TestGenerateNonce_DiffersFromState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState failed: %v", err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce failed: %v", err)
	}

	if state == nonce {
		t.Error("State and nonce should be independent random values")
	}
}
