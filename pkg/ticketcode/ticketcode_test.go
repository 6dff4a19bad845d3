package ticketcode

import (
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/campustix/campustix-backend/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	id := uuid.New()
	code := codec.Encode(id)
	if code == "" {
		t.Fatal("expected non-empty code")
	}

	decoded, err := codec.Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != id {
		t.Fatalf("expected %s, got %s", id, decoded)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	codec, _ := NewCodec("test-secret")

	for _, code := range []string{"", "!!!not-base64!!!", "c2hvcnQ", "QR-GARBAGE"} {
		_, err := codec.Decode(code)
		if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeInvalidCode {
			t.Fatalf("code %q: expected CodeInvalidCode, got %v", code, err)
		}
	}
}

func TestDecodeRejectsForgedSignature(t *testing.T) {
	signer, _ := NewCodec("real-secret")
	forger, _ := NewCodec("other-secret")

	id := uuid.New()
	forged := forger.Encode(id)

	_, err := signer.Decode(forged)
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeInvalidCode {
		t.Fatalf("expected CodeInvalidCode for forged code, got %v", err)
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
