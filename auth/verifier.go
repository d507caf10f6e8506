// Package auth verifies the user's master password and enforces its policy.
// Verification runs on its own salt and iteration tier so the verification
// hash never doubles as encryption key material.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const (
	// VerifyIterations is tuned for a one-time check at unlock, not for the
	// per-session derivation path.
	VerifyIterations = 310000

	// HashLen is the verification hash length in bytes.
	HashLen = 32
)

// HashPassword computes the verification hash for a master password.
// Case-sensitive; no normalization of whitespace or case.
func HashPassword(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, vaulterr.New(vaulterr.CodeValidation, "password is required")
	}
	if len(salt) == 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "salt is required")
	}
	return pbkdf2.Key([]byte(password), salt, VerifyIterations, HashLen, sha256.New), nil
}

// VerifyPassword reports whether password matches the stored hash for the
// stored salt. The comparison is constant time.
func VerifyPassword(password string, hash, salt []byte) (bool, error) {
	if len(hash) != HashLen {
		return false, vaulterr.New(vaulterr.CodeValidation, "stored hash has wrong length")
	}
	computed, err := HashPassword(password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(computed, hash) == 1, nil
}
