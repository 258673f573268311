package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch indicates the supplied password does not match the
// stored hash.
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHasher provides one-way salted hashing and verification.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) error
}

// BcryptHasher implements PasswordHasher using bcrypt. Comparison is
// constant-time by construction.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher constructs a hasher with the given cost, falling back to
// bcrypt.DefaultCost for out-of-range values.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

// Hash derives a salted hash from the plaintext password.
func (h BcryptHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports ErrPasswordMismatch when plain does not hash to hash.
func (h BcryptHasher) Verify(plain, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
