// Package service is the high-level facade over the vault. Callers get
// result structs instead of raw errors so UI layers can branch on outcome
// codes without unwrapping error chains.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TuPhung369/PasswordEpic-sub005/auth"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/biometric"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/records"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/session"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/vault"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// Result is the common operation outcome. Code is empty on success.
type Result struct {
	Success bool
	Code    vaulterr.Code
	Message string
}

// SessionKeyResult carries the session master key next to the outcome.
type SessionKeyResult struct {
	Result
	Key       []byte
	SessionID string
}

// BiometricStatus reports the current state of the biometric gate.
type BiometricStatus struct {
	Available bool
	Enrolled  bool
	Fallback  bool
	Reason    string
}

func okResult() Result {
	return Result{Success: true}
}

func failResult(err error) Result {
	return Result{Code: vaulterr.CodeOf(err), Message: err.Error()}
}

// Service exposes high-level vault operations for CLI and host frontends.
type Service struct {
	engine   *krypto.Engine
	creds    *vault.Store
	sessions *session.Manager
	gate     *biometric.Gate
	records  *records.Store
	log      zerolog.Logger
}

// New wires the facade from its already-constructed parts. The records store
// may be nil when the caller only needs credential and session operations.
func New(engine *krypto.Engine, creds *vault.Store, sessions *session.Manager, gate *biometric.Gate, recs *records.Store, log zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		creds:    creds,
		sessions: sessions,
		gate:     gate,
		records:  recs,
		log:      log,
	}
}

// Close drops cached key material and releases the records database.
func (s *Service) Close() {
	s.ClearSession()
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close records database")
		}
	}
}

// SetMasterSecret validates the new master password, stores its
// verification record and places the raw secret in the platform secure
// store. BiometricEnabled in the result reflects what actually happened,
// including the ungated fallback.
func (s *Service) SetMasterSecret(ctx context.Context, secret string, gateWithBiometric bool) (Result, bool) {
	opts := auth.DefaultValidateOptions()
	opts.EnableHIBP = true
	if err := auth.ValidateMasterPasswordAdvanced(ctx, secret, opts); err != nil {
		return failResult(err), false
	}

	enabled, err := s.creds.StoreSecret(ctx, secret, gateWithBiometric)
	if err != nil {
		return failResult(err), false
	}
	return okResult(), enabled
}

// VerifyMasterPassword checks a typed password against the stored
// verification hash. A wrong password is a failed result with an
// authentication code, not an error.
func (s *Service) VerifyMasterPassword(ctx context.Context, password string) Result {
	ok, err := s.creds.VerifyMasterPassword(ctx, password)
	if err != nil {
		return failResult(err)
	}
	if !ok {
		return Result{Code: vaulterr.CodeAuthFailed, Message: "master password does not match"}
	}
	return okResult()
}

// ChangeMasterPassword rotates the master secret after verifying the
// current one. The biometric gating choice of the existing secret carries
// over.
func (s *Service) ChangeMasterPassword(ctx context.Context, current, next string) Result {
	if r := s.VerifyMasterPassword(ctx, current); !r.Success {
		return r
	}
	wasGated, err := s.creds.IsBiometricEnabled(ctx)
	if err != nil {
		return failResult(err)
	}
	result, _ := s.SetMasterSecret(ctx, next, wasGated)
	return result
}

// GetEffectiveSessionKey returns the session master key for the signed-in
// identity, deriving it from the persisted anchors when not cached.
func (s *Service) GetEffectiveSessionKey(ctx context.Context, id session.Identity) SessionKeyResult {
	key, err := s.sessions.EffectiveKey(ctx, id)
	if err != nil {
		return SessionKeyResult{Result: failResult(err)}
	}
	return SessionKeyResult{Result: okResult(), Key: key.Bytes, SessionID: key.SessionID}
}

// StartNewSession drops the persisted anchors so the next key request mints
// fresh ones. Used at explicit fresh login, never on restart.
func (s *Service) StartNewSession(ctx context.Context) Result {
	if err := s.sessions.StartNewSession(ctx); err != nil {
		return failResult(err)
	}
	return okResult()
}

// ClearSession zeroizes every cached key in the process.
func (s *Service) ClearSession() {
	s.sessions.ClearCache()
	s.engine.Purge()
}

// SealRecord encrypts a field map under the identity's session key and
// persists the sealed record.
func (s *Service) SealRecord(ctx context.Context, id session.Identity, fields map[string]string) (Result, string) {
	key := s.GetEffectiveSessionKey(ctx, id)
	if !key.Success {
		return key.Result, ""
	}
	defer krypto.Zeroize(key.Key)

	record, err := vault.EncryptRecord(fields, key.Key)
	if err != nil {
		return failResult(err), ""
	}
	if s.records != nil {
		if err := s.records.Put(ctx, record); err != nil {
			return failResult(err), ""
		}
	}
	return okResult(), record.ID
}

// OpenRecord loads and decrypts a sealed record for the identity.
func (s *Service) OpenRecord(ctx context.Context, id session.Identity, recordID string) (Result, map[string]string) {
	if s.records == nil {
		return Result{Code: vaulterr.CodeNotAvailable, Message: "record storage is not configured"}, nil
	}
	key := s.GetEffectiveSessionKey(ctx, id)
	if !key.Success {
		return key.Result, nil
	}
	defer krypto.Zeroize(key.Key)

	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		return failResult(err), nil
	}
	fields, err := vault.DecryptRecord(record, key.Key)
	if err != nil {
		return failResult(err), nil
	}
	return okResult(), fields
}

// DeleteRecord removes a sealed record.
func (s *Service) DeleteRecord(ctx context.Context, recordID string) Result {
	if s.records == nil {
		return Result{Code: vaulterr.CodeNotAvailable, Message: "record storage is not configured"}
	}
	if err := s.records.Delete(ctx, recordID); err != nil {
		return failResult(err)
	}
	return okResult()
}

// ListRecordIDs returns the ids of all sealed records, oldest first.
func (s *Service) ListRecordIDs(ctx context.Context) (Result, []string) {
	if s.records == nil {
		return Result{Code: vaulterr.CodeNotAvailable, Message: "record storage is not configured"}, nil
	}
	list, err := s.records.List(ctx)
	if err != nil {
		return failResult(err), nil
	}
	ids := make([]string, 0, len(list))
	for _, record := range list {
		ids = append(ids, record.ID)
	}
	return okResult(), ids
}

// IsVaultConfigured reports whether a master credential exists.
func (s *Service) IsVaultConfigured(ctx context.Context) (bool, error) {
	return s.creds.IsConfigured(ctx)
}

// IsBiometricEnabled reports whether the stored secret is biometric-gated.
func (s *Service) IsBiometricEnabled(ctx context.Context) (bool, error) {
	return s.creds.IsBiometricEnabled(ctx)
}

// EnableBiometricUnlock provisions the biometric gate, falling back to the
// virtual key on platforms without hardware key support.
func (s *Service) EnableBiometricUnlock(ctx context.Context) Result {
	if err := s.gate.Provision(ctx); err != nil {
		return failResult(err)
	}
	return okResult()
}

// DisableBiometricUnlock removes the biometric key and flags.
func (s *Service) DisableBiometricUnlock(ctx context.Context) Result {
	if err := s.gate.Deprovision(ctx); err != nil {
		return failResult(err)
	}
	return okResult()
}

// BiometricState reports sensor capability and enrollment in one call.
func (s *Service) BiometricState(ctx context.Context) (BiometricStatus, error) {
	capability := s.gate.CheckCapability(ctx)
	status := BiometricStatus{
		Available: capability.Available,
		Reason:    capability.Reason,
	}
	enrolled, err := s.gate.IsSetup(ctx)
	if err != nil {
		return status, err
	}
	status.Enrolled = enrolled
	if enrolled {
		fallback, err := s.gate.IsFallback(ctx)
		if err != nil {
			return status, err
		}
		status.Fallback = fallback
	}
	return status, nil
}

// AuthenticateWithBiometric runs the platform prompt. The returned token
// proves a completed prompt for this process only; it is not a key.
func (s *Service) AuthenticateWithBiometric(ctx context.Context, promptText string) (Result, string) {
	token, err := s.gate.Authenticate(ctx, promptText)
	if err != nil {
		return failResult(err), ""
	}
	return okResult(), token
}

// RetrieveMasterSecret reads the raw master secret back through the
// biometric prompt.
func (s *Service) RetrieveMasterSecret(ctx context.Context, promptText string) (Result, string) {
	secret, err := s.creds.RetrieveSecret(ctx, promptText)
	if err != nil {
		return failResult(err), ""
	}
	return okResult(), secret
}
