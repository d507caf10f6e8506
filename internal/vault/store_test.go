package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/securestore"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

func newTestStore() (*Store, *kvstore.Memory, *securestore.Memory) {
	kv := kvstore.NewMemory()
	secure := securestore.NewMemory()
	return NewStore(kv, secure, zerolog.Nop()), kv, secure
}

func TestStoreSecretGated(t *testing.T) {
	s, _, secure := newTestStore()

	enabled, err := s.StoreSecret(context.Background(), "correct horse battery", true)
	if err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if !enabled {
		t.Fatal("expected biometric gating to be reported enabled")
	}

	policy, ok := secure.PolicyOf(SecureService, SecureAccount)
	if !ok {
		t.Fatal("secret missing from secure store")
	}
	if policy.Control != securestore.AccessControlBiometry {
		t.Fatalf("stored with control %q, want biometry", policy.Control)
	}

	if on, err := s.IsBiometricEnabled(context.Background()); err != nil || !on {
		t.Fatalf("IsBiometricEnabled = %v, %v, want true", on, err)
	}
	if configured, err := s.IsConfigured(context.Background()); err != nil || !configured {
		t.Fatalf("IsConfigured = %v, %v, want true", configured, err)
	}
}

func TestStoreSecretFallsBackWhenGatingRejected(t *testing.T) {
	s, _, secure := newTestStore()
	secure.RejectBiometry = true

	enabled, err := s.StoreSecret(context.Background(), "correct horse battery", true)
	if err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if enabled {
		t.Fatal("gating must not be reported enabled after a fallback write")
	}

	policy, ok := secure.PolicyOf(SecureService, SecureAccount)
	if !ok {
		t.Fatal("fallback must still store the secret")
	}
	if policy.Control != securestore.AccessControlNone {
		t.Fatalf("fallback stored with control %q, want none", policy.Control)
	}
	if on, _ := s.IsBiometricEnabled(context.Background()); on {
		t.Fatal("biometric flag must be false after fallback")
	}

	_, err = s.RetrieveSecret(context.Background(), "unlock")
	if vaulterr.CodeOf(err) != vaulterr.CodeNotConfigured {
		t.Fatalf("RetrieveSecret after fallback = %v, want not_configured", err)
	}
}

func TestStoreSecretUngated(t *testing.T) {
	s, _, secure := newTestStore()

	enabled, err := s.StoreSecret(context.Background(), "correct horse battery", false)
	if err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if enabled {
		t.Fatal("ungated store must report gating off")
	}
	if policy, _ := secure.PolicyOf(SecureService, SecureAccount); policy.Control != securestore.AccessControlNone {
		t.Fatalf("stored with control %q, want none", policy.Control)
	}
}

func TestStoreSecretEmpty(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "", true); vaulterr.CodeOf(err) != vaulterr.CodeValidation {
		t.Fatalf("empty secret = %v, want validation", err)
	}
}

func TestVerifyMasterPassword(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "Str0ng!master-pass", true); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	ok, err := s.VerifyMasterPassword(context.Background(), "Str0ng!master-pass")
	if err != nil || !ok {
		t.Fatalf("correct password = %v, %v, want true", ok, err)
	}
	ok, err = s.VerifyMasterPassword(context.Background(), "str0ng!master-pass")
	if err != nil || ok {
		t.Fatalf("case-variant password = %v, %v, want false", ok, err)
	}
	ok, err = s.VerifyMasterPassword(context.Background(), "wrong entirely")
	if err != nil || ok {
		t.Fatalf("wrong password = %v, %v, want false", ok, err)
	}
}

func TestVerifyMasterPasswordNotConfigured(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.VerifyMasterPassword(context.Background(), "anything"); vaulterr.CodeOf(err) != vaulterr.CodeNotConfigured {
		t.Fatalf("unconfigured verify = %v, want not_configured", err)
	}
}

func TestRetrieveSecret(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "the-master-secret", true); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	secret, err := s.RetrieveSecret(context.Background(), "unlock your vault")
	if err != nil {
		t.Fatalf("RetrieveSecret: %v", err)
	}
	if secret != "the-master-secret" {
		t.Fatalf("retrieved %q, want original secret", secret)
	}
}

func TestRetrieveSecretCancelled(t *testing.T) {
	s, _, secure := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "the-master-secret", true); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	secure.PromptErr = securestore.ErrPromptCancelled

	_, err := s.RetrieveSecret(context.Background(), "unlock")
	if vaulterr.CodeOf(err) != vaulterr.CodeAuthCancelled {
		t.Fatalf("cancelled prompt = %v, want authentication_cancelled", err)
	}
}

func TestRetrieveSecretTimesOut(t *testing.T) {
	s, _, secure := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "the-master-secret", true); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	secure.ReadDelay = 200 * time.Millisecond
	s.SetRetrieveTimeout(30 * time.Millisecond)

	_, err := s.RetrieveSecret(context.Background(), "unlock")
	if vaulterr.CodeOf(err) != vaulterr.CodeTimeout {
		t.Fatalf("slow platform read = %v, want timeout", err)
	}
}

func TestStatusCacheInvalidatedOnMutation(t *testing.T) {
	s, _, _ := newTestStore()

	// Prime the cache with the unconfigured state.
	if configured, err := s.IsConfigured(context.Background()); err != nil || configured {
		t.Fatalf("fresh store IsConfigured = %v, %v, want false", configured, err)
	}

	if _, err := s.StoreSecret(context.Background(), "Str0ng!master-pass", false); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if configured, err := s.IsConfigured(context.Background()); err != nil || !configured {
		t.Fatalf("IsConfigured right after StoreSecret = %v, %v, want true", configured, err)
	}

	if err := s.RemoveSecret(context.Background()); err != nil {
		t.Fatalf("RemoveSecret: %v", err)
	}
	if configured, err := s.IsConfigured(context.Background()); err != nil || configured {
		t.Fatalf("IsConfigured right after RemoveSecret = %v, %v, want false", configured, err)
	}
}

func TestStatusCacheServesUntilTTL(t *testing.T) {
	s, kv, _ := newTestStore()
	clock := time.Now()
	s.now = func() time.Time { return clock }

	if _, err := s.StoreSecret(context.Background(), "Str0ng!master-pass", false); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if configured, _ := s.IsConfigured(context.Background()); !configured {
		t.Fatal("expected configured after store")
	}

	// Mutate the backing store out of band. The cache must keep serving the
	// cached answer until the TTL lapses.
	if err := kv.Remove(context.Background(), keyCredential); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if configured, _ := s.IsConfigured(context.Background()); !configured {
		t.Fatal("cache must serve within TTL")
	}

	clock = clock.Add(statusCacheTTL + time.Second)
	if configured, _ := s.IsConfigured(context.Background()); configured {
		t.Fatal("expired cache must re-read the backing store")
	}
}

func TestStatusLoadSurvivesCallerCancellation(t *testing.T) {
	// Bolt rejects reads under a cancelled context, so a coalesced load
	// that inherited a dead caller context would fail here.
	kv, err := kvstore.OpenBolt(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() {
		kv.Close()
	})
	s := NewStore(kv, securestore.NewMemory(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	configured, err := s.IsConfigured(ctx)
	if err != nil {
		t.Fatalf("IsConfigured with cancelled caller context: %v", err)
	}
	if configured {
		t.Fatal("empty store must report unconfigured")
	}
}

func TestRemoveSecretClearsState(t *testing.T) {
	s, kv, secure := newTestStore()
	if _, err := s.StoreSecret(context.Background(), "Str0ng!master-pass", true); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if err := s.RemoveSecret(context.Background()); err != nil {
		t.Fatalf("RemoveSecret: %v", err)
	}

	if kv.Len() != 0 {
		t.Fatalf("kv store still holds %d keys", kv.Len())
	}
	if _, ok := secure.PolicyOf(SecureService, SecureAccount); ok {
		t.Fatal("secure store still holds the secret")
	}
	if _, err := s.VerifyMasterPassword(context.Background(), "Str0ng!master-pass"); vaulterr.CodeOf(err) != vaulterr.CodeNotConfigured {
		t.Fatalf("verify after removal = %v, want not_configured", err)
	}
}
