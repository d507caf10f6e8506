package vault

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// recordKeyInfo labels the HKDF expansion for per-record subkeys. Bump the
// version if the record key schedule ever changes.
const recordKeyInfo = "passwordepic/record-key/v1"

// Record is one encrypted credential entry. Every field of the entry lives
// inside the blob; only identity and timestamps are visible in the clear.
type Record struct {
	ID        string
	Blob      krypto.Blob
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EncryptRecord seals a field map under a per-record subkey. The subkey is
// expanded from the session key and the record's own fresh salt, so two
// records encrypted under the same session key never share key material.
func EncryptRecord(fields map[string]string, sessionKey []byte) (Record, error) {
	if len(fields) == 0 {
		return Record{}, vaulterr.New(vaulterr.CodeValidation, "record has no fields")
	}
	if len(sessionKey) != krypto.DerivedKeyLen {
		return Record{}, vaulterr.New(vaulterr.CodeValidation, "session key has wrong length")
	}

	plaintext, err := json.Marshal(fields)
	if err != nil {
		return Record{}, vaulterr.Wrap(vaulterr.CodeStorage, "encode record fields", err)
	}
	salt, err := krypto.NewSalt()
	if err != nil {
		return Record{}, err
	}
	recordKey, err := krypto.HKDFSHA256(sessionKey, salt, []byte(recordKeyInfo), krypto.DerivedKeyLen)
	if err != nil {
		return Record{}, err
	}
	defer krypto.Zeroize(recordKey)

	blob, err := krypto.Encrypt(plaintext, recordKey, salt, nil)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	return Record{
		ID:        uuid.NewString(),
		Blob:      blob,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DecryptRecord opens a sealed record with the same session key that sealed
// it. Tampering with any blob field surfaces as an integrity error.
func DecryptRecord(record Record, sessionKey []byte) (map[string]string, error) {
	if len(sessionKey) != krypto.DerivedKeyLen {
		return nil, vaulterr.New(vaulterr.CodeValidation, "session key has wrong length")
	}
	recordKey, err := krypto.HKDFSHA256(sessionKey, record.Blob.Salt, []byte(recordKeyInfo), krypto.DerivedKeyLen)
	if err != nil {
		return nil, err
	}
	defer krypto.Zeroize(recordKey)

	plaintext, err := krypto.Decrypt(record.Blob, recordKey)
	if err != nil {
		return nil, err
	}
	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeIntegrity, "decode record fields", err)
	}
	return fields, nil
}
