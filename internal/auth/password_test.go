package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := hasher.Verify("correct horse", hash); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := hasher.Verify("battery staple", hash); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch got %v", err)
	}
}

func TestBcryptHasherRejectsBadStoredHash(t *testing.T) {
	hasher := NewBcryptHasher(0)
	if err := hasher.Verify("anything", "not-a-bcrypt-hash"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch got %v", err)
	}
}
