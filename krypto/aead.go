package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// Blob is the authenticated-encryption envelope for a secret record.
// IV, Tag and Salt are mandatory for decryption and a mismatch in any field
// rejects the blob outright. Ciphertext is zero-length when the sealed
// plaintext was empty; the tag still authenticates it.
type Blob struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
	Salt       []byte
}

// The construction is an explicit encrypt-then-MAC: AES-256-CTR for
// confidentiality, HMAC-SHA256 for authenticity. The MAC input is exactly
// ciphertext || iv, in that order. Reimplementations must preserve this
// byte layout to stay compatible with existing blobs.

func computeTag(key, ciphertext, iv []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	mac.Write(iv)
	return mac.Sum(nil)
}

// Encrypt seals plaintext under key. When iv is nil a fresh random IV is
// generated; callers must never reuse an IV with the same key. The salt is
// carried opaquely in the blob so the key can be re-derived at decrypt time.
func Encrypt(plaintext, key, salt, iv []byte) (Blob, error) {
	if len(key) != DerivedKeyLen {
		return Blob{}, vaulterr.New(vaulterr.CodeValidation, "encryption key must be 32 bytes")
	}
	if len(salt) == 0 {
		return Blob{}, vaulterr.New(vaulterr.CodeValidation, "salt is required")
	}
	if iv == nil {
		var err error
		iv, err = RandomBytes(IVLen)
		if err != nil {
			return Blob{}, fmt.Errorf("generate iv: %w", err)
		}
	}
	if len(iv) != IVLen {
		return Blob{}, vaulterr.New(vaulterr.CodeValidation, "iv must be 16 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Blob{}, fmt.Errorf("create cipher: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	return Blob{
		Ciphertext: ciphertext,
		IV:         iv,
		Tag:        computeTag(key, ciphertext, iv),
		Salt:       salt,
	}, nil
}

// Decrypt verifies the blob's tag and inverts the cipher. The tag is checked
// before any decryption happens; a wrong key, wrong IV, wrong tag or
// corrupted ciphertext all fail closed with an integrity error, never with
// garbage plaintext.
func Decrypt(b Blob, key []byte) ([]byte, error) {
	if len(key) != DerivedKeyLen {
		return nil, vaulterr.New(vaulterr.CodeValidation, "decryption key must be 32 bytes")
	}
	if len(b.IV) == 0 || len(b.Tag) == 0 || len(b.Salt) == 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "encrypted blob is missing required fields")
	}
	if len(b.IV) != IVLen {
		return nil, vaulterr.New(vaulterr.CodeValidation, "iv must be 16 bytes")
	}
	if len(b.Tag) != sha256.Size {
		return nil, vaulterr.New(vaulterr.CodeIntegrity, "authentication tag has wrong length")
	}

	if !hmac.Equal(b.Tag, computeTag(key, b.Ciphertext, b.IV)) {
		return nil, vaulterr.New(vaulterr.CodeIntegrity, "authentication tag mismatch")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(b.Ciphertext))
	cipher.NewCTR(block, b.IV).XORKeyStream(plaintext, b.Ciphertext)
	return plaintext, nil
}
