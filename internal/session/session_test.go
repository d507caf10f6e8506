package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

var testIdentity = Identity{UserID: "user-1", Email: "u@example.com"}

func newTestManager(store *kvstore.Memory) *Manager {
	return NewManager(krypto.NewEngine(), store, zerolog.Nop())
}

func TestEffectiveKeyRequiresIdentity(t *testing.T) {
	m := newTestManager(kvstore.NewMemory())
	_, err := m.EffectiveKey(context.Background(), Identity{})
	if !vaulterr.HasCode(err, vaulterr.CodeNotAuthenticated) {
		t.Fatalf("expected not-authenticated code, got %v", err)
	}
}

func TestEffectiveKeyStableAcrossCalls(t *testing.T) {
	m := newTestManager(kvstore.NewMemory())
	ctx := context.Background()

	k1, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}
	k2, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey second call returned error: %v", err)
	}

	if !bytes.Equal(k1.Bytes, k2.Bytes) {
		t.Fatal("session key changed between calls")
	}
	if k1.SessionID != k2.SessionID {
		t.Fatalf("session id changed: %q vs %q", k1.SessionID, k2.SessionID)
	}
	if len(k1.Bytes) != krypto.DerivedKeyLen {
		t.Fatalf("key length = %d, want %d", len(k1.Bytes), krypto.DerivedKeyLen)
	}
}

func TestEffectiveKeySurvivesRestart(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	before, err := newTestManager(store).EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey before restart returned error: %v", err)
	}

	// A new manager over the same persisted anchors models a process
	// restart: the key must come back bit-identical.
	after, err := newTestManager(store).EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey after restart returned error: %v", err)
	}

	if !bytes.Equal(before.Bytes, after.Bytes) {
		t.Fatal("session key differs after simulated restart")
	}
	if before.SessionID != after.SessionID {
		t.Fatalf("session id differs after restart: %q vs %q", before.SessionID, after.SessionID)
	}
}

func TestAnchorsNotRotatedOnRepeatedCalls(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	if _, err := m.EffectiveKey(ctx, testIdentity); err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}
	anchors1, err := store.MultiGet(ctx, []string{keyLoginTS, keySessionSalt})
	if err != nil {
		t.Fatalf("MultiGet returned error: %v", err)
	}

	m.ClearCache()
	if _, err := m.EffectiveKey(ctx, testIdentity); err != nil {
		t.Fatalf("EffectiveKey after cache clear returned error: %v", err)
	}
	anchors2, err := store.MultiGet(ctx, []string{keyLoginTS, keySessionSalt})
	if err != nil {
		t.Fatalf("MultiGet returned error: %v", err)
	}

	if anchors1[keyLoginTS] != anchors2[keyLoginTS] || anchors1[keySessionSalt] != anchors2[keySessionSalt] {
		t.Fatal("anchors silently rotated outside a fresh login")
	}
}

func TestStartNewSessionRotatesAnchors(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	k1, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}

	if err := m.StartNewSession(ctx); err != nil {
		t.Fatalf("StartNewSession returned error: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected anchors cleared, %d keys remain", store.Len())
	}

	k2, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey after fresh login returned error: %v", err)
	}
	if bytes.Equal(k1.Bytes, k2.Bytes) {
		t.Fatal("fresh login produced the same key as the previous session")
	}
}

func TestEffectiveKeyRejectsForeignSession(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	if _, err := m.EffectiveKey(ctx, testIdentity); err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}
	m.ClearCache()

	_, err := m.EffectiveKey(ctx, Identity{UserID: "user-2"})
	if !vaulterr.HasCode(err, vaulterr.CodeNotAuthenticated) {
		t.Fatalf("expected not-authenticated code for foreign session, got %v", err)
	}
}

func TestVerifySessionReasons(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	v, err := m.VerifySession(ctx, testIdentity)
	if err != nil {
		t.Fatalf("VerifySession returned error: %v", err)
	}
	if v.Valid || v.Reason != ReasonNoSession {
		t.Fatalf("expected no-session reason, got %+v", v)
	}

	if _, err := m.EffectiveKey(ctx, testIdentity); err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}

	v, err = m.VerifySession(ctx, testIdentity)
	if err != nil {
		t.Fatalf("VerifySession returned error: %v", err)
	}
	if !v.Valid {
		t.Fatalf("expected valid session, got %+v", v)
	}

	v, err = m.VerifySession(ctx, Identity{UserID: "user-2"})
	if err != nil {
		t.Fatalf("VerifySession returned error: %v", err)
	}
	if v.Valid || v.Reason != ReasonUserMismatch {
		t.Fatalf("expected user-mismatch reason, got %+v", v)
	}
}

func TestEffectiveKeyRejectsTruncatedSalt(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	// A corrupted persisted salt shorter than the prefix the key
	// composition consumes must fail cleanly, not read out of range.
	pairs := map[string]string{
		keyLoginTS:     "1700000000000",
		keySessionSalt: "abcd",
		keyUserID:      testIdentity.UserID,
	}
	if err := store.MultiSet(ctx, pairs); err != nil {
		t.Fatalf("MultiSet returned error: %v", err)
	}

	_, err := m.EffectiveKey(ctx, testIdentity)
	if !vaulterr.HasCode(err, vaulterr.CodeValidation) {
		t.Fatalf("expected validation code for truncated salt, got %v", err)
	}
}

func TestEffectiveKeyStorageFailure(t *testing.T) {
	store := kvstore.NewMemory()
	store.FailKeys = map[string]error{keyLoginTS: vaulterr.New(vaulterr.CodeStorage, "disk gone")}
	m := newTestManager(store)

	_, err := m.EffectiveKey(context.Background(), testIdentity)
	if !vaulterr.HasCode(err, vaulterr.CodeStorage) {
		t.Fatalf("expected storage code, got %v", err)
	}
}

func TestCachedKeyExpires(t *testing.T) {
	store := kvstore.NewMemory()
	m := newTestManager(store)
	ctx := context.Background()

	clock := time.Now()
	m.now = func() time.Time { return clock }

	k1, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey returned error: %v", err)
	}

	// Past the cache TTL the key is re-derived from the same anchors and
	// must still be identical.
	clock = clock.Add(keyCacheTTL + time.Minute)
	k2, err := m.EffectiveKey(ctx, testIdentity)
	if err != nil {
		t.Fatalf("EffectiveKey after expiry returned error: %v", err)
	}
	if !bytes.Equal(k1.Bytes, k2.Bytes) {
		t.Fatal("re-derived key differs from original")
	}
}
