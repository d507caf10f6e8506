package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/biometric"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/records"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/securestore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/service"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/session"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/vault"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// strongPassword clears the length, class and zxcvbn checks.
const strongPassword = "Tr4verse!Quantum-Moose&91"

func newTestService(t *testing.T) (*service.Service, *securestore.Memory) {
	t.Helper()

	log := zerolog.Nop()
	engine := krypto.NewEngine()
	kv := kvstore.NewMemory()
	secure := securestore.NewMemory()
	creds := vault.NewStore(kv, secure, log)
	sessions := session.NewManager(engine, kv, log)
	gate := biometric.NewGate(biometric.NewFallback(), kv, log)

	recs, err := records.Open(records.Config{
		FilePath: filepath.Join(t.TempDir(), "data", "records.db"),
	}, log)
	if err != nil {
		t.Fatalf("open records store: %v", err)
	}

	svc := service.New(engine, creds, sessions, gate, recs, log)
	t.Cleanup(svc.Close)
	return svc, secure
}

func TestSetAndVerifyMasterSecret(t *testing.T) {
	svc, _ := newTestService(t)

	result, enabled := svc.SetMasterSecret(context.Background(), strongPassword, true)
	if !result.Success {
		t.Fatalf("SetMasterSecret failed: %s %s", result.Code, result.Message)
	}
	if !enabled {
		t.Fatal("memory secure store accepts biometry, gating should be enabled")
	}

	if r := svc.VerifyMasterPassword(context.Background(), strongPassword); !r.Success {
		t.Fatalf("correct password rejected: %s %s", r.Code, r.Message)
	}
	if r := svc.VerifyMasterPassword(context.Background(), "Wrong-Password-99!"); r.Success || r.Code != vaulterr.CodeAuthFailed {
		t.Fatalf("wrong password = %+v, want authentication_failed", r)
	}

	configured, err := svc.IsVaultConfigured(context.Background())
	if err != nil || !configured {
		t.Fatalf("IsVaultConfigured = %v, %v, want true", configured, err)
	}
}

func TestSetMasterSecretRejectsWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)

	result, enabled := svc.SetMasterSecret(context.Background(), "Password1234!", false)
	if result.Success || enabled {
		t.Fatalf("weak password accepted: %+v", result)
	}
	if result.Code != vaulterr.CodeValidation {
		t.Fatalf("weak password code = %s, want validation", result.Code)
	}

	// A rejected password must leave nothing behind.
	if configured, _ := svc.IsVaultConfigured(context.Background()); configured {
		t.Fatal("rejected password must not configure the vault")
	}
}

func TestChangeMasterPassword(t *testing.T) {
	svc, _ := newTestService(t)
	if r, _ := svc.SetMasterSecret(context.Background(), strongPassword, true); !r.Success {
		t.Fatalf("SetMasterSecret: %s", r.Message)
	}

	next := "N3xt!Granite-Falcon&47"
	if r := svc.ChangeMasterPassword(context.Background(), "not the current one", next); r.Success {
		t.Fatal("change must require the current password")
	}
	if r := svc.ChangeMasterPassword(context.Background(), strongPassword, next); !r.Success {
		t.Fatalf("ChangeMasterPassword: %s %s", r.Code, r.Message)
	}

	if r := svc.VerifyMasterPassword(context.Background(), next); !r.Success {
		t.Fatalf("new password rejected after change: %s", r.Message)
	}
	if r := svc.VerifyMasterPassword(context.Background(), strongPassword); r.Success {
		t.Fatal("old password still verifies after change")
	}

	// Gating choice carries over.
	enabled, err := svc.IsBiometricEnabled(context.Background())
	if err != nil || !enabled {
		t.Fatalf("IsBiometricEnabled after change = %v, %v, want true", enabled, err)
	}
}

func TestSessionKeyStableAcrossCalls(t *testing.T) {
	svc, _ := newTestService(t)
	id := session.Identity{UserID: "user-1", Email: "user@example.com"}

	first := svc.GetEffectiveSessionKey(context.Background(), id)
	if !first.Success {
		t.Fatalf("GetEffectiveSessionKey: %s %s", first.Code, first.Message)
	}
	second := svc.GetEffectiveSessionKey(context.Background(), id)
	if !second.Success {
		t.Fatalf("GetEffectiveSessionKey: %s %s", second.Code, second.Message)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("session id changed between calls: %q vs %q", first.SessionID, second.SessionID)
	}

	if r := svc.StartNewSession(context.Background()); !r.Success {
		t.Fatalf("StartNewSession: %s", r.Message)
	}
	third := svc.GetEffectiveSessionKey(context.Background(), id)
	if !third.Success {
		t.Fatalf("GetEffectiveSessionKey: %s %s", third.Code, third.Message)
	}
	if third.SessionID == first.SessionID {
		t.Fatal("fresh login must rotate the session key")
	}
}

func TestSessionKeyRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	result := svc.GetEffectiveSessionKey(context.Background(), session.Identity{})
	if result.Success || result.Code != vaulterr.CodeNotAuthenticated {
		t.Fatalf("anonymous session key = %+v, want not_authenticated", result)
	}
}

func TestSealOpenDeleteRecord(t *testing.T) {
	svc, _ := newTestService(t)
	id := session.Identity{UserID: "user-1"}
	fields := map[string]string{"website": "example.com", "password": "hunter2!"}

	result, recordID := svc.SealRecord(context.Background(), id, fields)
	if !result.Success {
		t.Fatalf("SealRecord: %s %s", result.Code, result.Message)
	}
	if recordID == "" {
		t.Fatal("SealRecord returned no id")
	}

	openResult, got := svc.OpenRecord(context.Background(), id, recordID)
	if !openResult.Success {
		t.Fatalf("OpenRecord: %s %s", openResult.Code, openResult.Message)
	}
	if got["password"] != "hunter2!" {
		t.Fatalf("decrypted password = %q", got["password"])
	}

	listResult, ids := svc.ListRecordIDs(context.Background())
	if !listResult.Success || len(ids) != 1 || ids[0] != recordID {
		t.Fatalf("ListRecordIDs = %+v, %v", listResult, ids)
	}

	if r := svc.DeleteRecord(context.Background(), recordID); !r.Success {
		t.Fatalf("DeleteRecord: %s %s", r.Code, r.Message)
	}
	if r, _ := svc.OpenRecord(context.Background(), id, recordID); r.Success || r.Code != vaulterr.CodeValidation {
		t.Fatalf("open after delete = %+v, want validation", r)
	}
}

func TestOpenRecordAfterSessionRotationFails(t *testing.T) {
	svc, _ := newTestService(t)
	id := session.Identity{UserID: "user-1"}

	_, recordID := svc.SealRecord(context.Background(), id, map[string]string{"password": "old-session"})
	if r := svc.StartNewSession(context.Background()); !r.Success {
		t.Fatalf("StartNewSession: %s", r.Message)
	}

	result, _ := svc.OpenRecord(context.Background(), id, recordID)
	if result.Success || result.Code != vaulterr.CodeIntegrity {
		t.Fatalf("record sealed under old session opened = %+v, want integrity", result)
	}
}

func TestBiometricLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	status, err := svc.BiometricState(context.Background())
	if err != nil {
		t.Fatalf("BiometricState: %v", err)
	}
	if !status.Available || status.Enrolled {
		t.Fatalf("fresh state = %+v, want available and not enrolled", status)
	}

	if r := svc.EnableBiometricUnlock(context.Background()); !r.Success {
		t.Fatalf("EnableBiometricUnlock: %s %s", r.Code, r.Message)
	}
	status, err = svc.BiometricState(context.Background())
	if err != nil || !status.Enrolled {
		t.Fatalf("state after enable = %+v, %v, want enrolled", status, err)
	}
	if !status.Fallback {
		t.Fatal("fallback hardware must report fallback enrollment")
	}

	result, token := svc.AuthenticateWithBiometric(context.Background(), "Unlock your vault")
	if !result.Success || token == "" {
		t.Fatalf("AuthenticateWithBiometric = %+v, token %q", result, token)
	}

	if r := svc.DisableBiometricUnlock(context.Background()); !r.Success {
		t.Fatalf("DisableBiometricUnlock: %s %s", r.Code, r.Message)
	}
	if r, _ := svc.AuthenticateWithBiometric(context.Background(), "Unlock"); r.Success || r.Code != vaulterr.CodeNotConfigured {
		t.Fatalf("authenticate after disable = %+v, want not_configured", r)
	}
}

func TestRetrieveMasterSecret(t *testing.T) {
	svc, secure := newTestService(t)
	if r, enabled := svc.SetMasterSecret(context.Background(), strongPassword, true); !r.Success || !enabled {
		t.Fatalf("SetMasterSecret = %+v, enabled %v", r, enabled)
	}

	result, secret := svc.RetrieveMasterSecret(context.Background(), "Unlock your vault")
	if !result.Success {
		t.Fatalf("RetrieveMasterSecret: %s %s", result.Code, result.Message)
	}
	if secret != strongPassword {
		t.Fatal("retrieved secret does not match the stored one")
	}

	secure.PromptErr = securestore.ErrPromptCancelled
	result, _ = svc.RetrieveMasterSecret(context.Background(), "Unlock your vault")
	if result.Success || result.Code != vaulterr.CodeAuthCancelled {
		t.Fatalf("cancelled retrieve = %+v, want authentication_cancelled", result)
	}
}
