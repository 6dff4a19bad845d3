package security_test

import (
	"testing"

	"github.com/campustix/campustix-backend/pkg/config"
	"github.com/campustix/campustix-backend/pkg/security"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	cfg := config.OperatorConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashAPIKey("gate-key-123", cfg)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashAPIKey returned empty string")
	}

	ok, err := security.VerifyAPIKey("gate-key-123", hash)
	if err != nil {
		t.Fatalf("VerifyAPIKey returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected matching key to verify")
	}

	ok, err = security.VerifyAPIKey("wrong-key", hash)
	if err != nil {
		t.Fatalf("VerifyAPIKey returned error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched key to fail")
	}
}

func TestVerifyAPIKeyRejectsMalformedHash(t *testing.T) {
	if _, err := security.VerifyAPIKey("key", "not-a-hash"); err != security.ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := security.GenerateAPIKey(32)
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 characters, got %d", len(key))
	}

	other, err := security.GenerateAPIKey(32)
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	if key == other {
		t.Fatal("expected distinct keys across calls")
	}

	if _, err := security.GenerateAPIKey(0); err == nil {
		t.Fatal("expected error for non-positive length")
	}
}
