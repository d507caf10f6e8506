package vault

import (
	"bytes"
	"testing"

	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

func testSessionKey(b byte) []byte {
	key := make([]byte, krypto.DerivedKeyLen)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestRecordRoundTrip(t *testing.T) {
	key := testSessionKey(0x42)
	fields := map[string]string{
		"title":    "example.com",
		"username": "alice",
		"password": "p4ssw0rd!",
	}

	record, err := EncryptRecord(fields, key)
	if err != nil {
		t.Fatalf("EncryptRecord: %v", err)
	}
	if record.ID == "" {
		t.Fatal("record has no id")
	}
	if record.CreatedAt.IsZero() || !record.CreatedAt.Equal(record.UpdatedAt) {
		t.Fatalf("timestamps created=%v updated=%v", record.CreatedAt, record.UpdatedAt)
	}

	got, err := DecryptRecord(record, key)
	if err != nil {
		t.Fatalf("DecryptRecord: %v", err)
	}
	for k, want := range fields {
		if got[k] != want {
			t.Fatalf("field %q = %q, want %q", k, got[k], want)
		}
	}
}

func TestRecordsUseDistinctSubkeys(t *testing.T) {
	key := testSessionKey(0x42)
	fields := map[string]string{"password": "same plaintext"}

	a, err := EncryptRecord(fields, key)
	if err != nil {
		t.Fatalf("EncryptRecord: %v", err)
	}
	b, err := EncryptRecord(fields, key)
	if err != nil {
		t.Fatalf("EncryptRecord: %v", err)
	}

	if bytes.Equal(a.Blob.Salt, b.Blob.Salt) {
		t.Fatal("two records share a salt")
	}
	if bytes.Equal(a.Blob.Ciphertext, b.Blob.Ciphertext) {
		t.Fatal("two records share ciphertext for the same plaintext")
	}
}

func TestRecordTamperDetected(t *testing.T) {
	key := testSessionKey(0x42)
	record, err := EncryptRecord(map[string]string{"password": "secret"}, key)
	if err != nil {
		t.Fatalf("EncryptRecord: %v", err)
	}

	record.Blob.Ciphertext[0] ^= 0x01
	if _, err := DecryptRecord(record, key); vaulterr.CodeOf(err) != vaulterr.CodeIntegrity {
		t.Fatalf("tampered record = %v, want integrity", err)
	}
}

func TestRecordWrongSessionKey(t *testing.T) {
	record, err := EncryptRecord(map[string]string{"password": "secret"}, testSessionKey(0x42))
	if err != nil {
		t.Fatalf("EncryptRecord: %v", err)
	}
	if _, err := DecryptRecord(record, testSessionKey(0x43)); vaulterr.CodeOf(err) != vaulterr.CodeIntegrity {
		t.Fatalf("wrong key = %v, want integrity", err)
	}
}

func TestRecordValidation(t *testing.T) {
	key := testSessionKey(0x42)

	if _, err := EncryptRecord(nil, key); vaulterr.CodeOf(err) != vaulterr.CodeValidation {
		t.Fatalf("empty fields = %v, want validation", err)
	}
	if _, err := EncryptRecord(map[string]string{"a": "b"}, key[:16]); vaulterr.CodeOf(err) != vaulterr.CodeValidation {
		t.Fatalf("short key = %v, want validation", err)
	}
	if _, err := DecryptRecord(Record{}, key); vaulterr.CodeOf(err) != vaulterr.CodeValidation {
		t.Fatalf("empty record = %v, want validation", err)
	}
}
