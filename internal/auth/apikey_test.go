package auth

import "testing"

func TestHashAndVerifyAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("intake-key-123")
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !VerifyAPIKey("intake-key-123", hash) {
		t.Fatalf("expected api key verification to succeed")
	}
	if VerifyAPIKey("wrong-key", hash) {
		t.Fatalf("did not expect wrong key to verify")
	}
}

func TestHashAPIKeyRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := HashAPIKey("   "); err == nil {
		t.Fatalf("expected error for blank key")
	}
	if VerifyAPIKey("", "some-hash") {
		t.Fatalf("did not expect empty key to verify")
	}
}
