package krypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const (
	// SaltLen is the salt length in bytes used across the vault.
	SaltLen = 16
	// IVLen is the AES block size, used as the CTR initialization vector length.
	IVLen = 16
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "random length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return buf, nil
}

// NewSalt returns a fresh random salt of SaltLen bytes.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltLen)
}

// RandomHex returns n random bytes hex-encoded (2n characters).
func RandomHex(n int) (string, error) {
	buf, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Zeroize overwrites a sensitive byte slice in place to shorten its lifetime
// in memory.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
