package krypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// HKDFSHA256 derives outLen bytes of key material per RFC 5869 with SHA-256.
// Used for cheap per-record subkeys off an already-stretched master key, so
// a leaked record key never exposes siblings.
func HKDFSHA256(key, salt, info []byte, outLen int) ([]byte, error) {
	if outLen <= 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "hkdf output length must be positive")
	}

	// Extract
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}
	ext := hmac.New(sha256.New, salt)
	ext.Write(key)
	prk := ext.Sum(nil)

	// Expand
	var (
		out     []byte
		t       []byte
		counter byte = 1
	)
	for len(out) < outLen {
		exp := hmac.New(sha256.New, prk)
		exp.Write(t)
		exp.Write(info)
		exp.Write([]byte{counter})
		t = exp.Sum(nil)
		out = append(out, t...)
		counter++
	}
	return out[:outLen], nil
}
