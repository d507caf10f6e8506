// Package vault persists the master credential. The verification hash and
// salt always live in the regular key-value store; the raw master secret
// only ever enters the platform secure store, biometric-gated when the
// platform allows it.
package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TuPhung369/PasswordEpic-sub005/auth"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/internal/securestore"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const (
	keyCredential       = "vault.credential"
	keyBiometricEnabled = "vault.biometric_enabled"

	// SecureService and SecureAccount locate the raw master secret inside
	// the platform secure store.
	SecureService = "com.passwordepic.vault"
	SecureAccount = "master-secret"

	// statusCacheTTL covers the configured/enabled checks. Tens of seconds:
	// the backing check may be remote-style or an expensive platform call.
	statusCacheTTL = 30 * time.Second

	// defaultRetrieveTimeout bounds the platform secure-store read. A
	// timeout is reported distinctly from user cancellation.
	defaultRetrieveTimeout = 30 * time.Second
)

// CredentialRecord is the persisted verification material. Its salt and
// iteration tier are independent of the encryption-key derivation path.
type CredentialRecord struct {
	PasswordHash   string `json:"passwordHash"`
	Salt           string `json:"salt"`
	LastVerifiedAt int64  `json:"lastVerifiedAt"`
}

type boolCache struct {
	value     bool
	set       bool
	expiresAt time.Time
}

func (c boolCache) valid(now time.Time) bool {
	return c.set && now.Before(c.expiresAt)
}

// Store is the secure credential store. One instance per process, shared by
// every consumer.
type Store struct {
	kv     kvstore.Store
	secure securestore.Store
	log    zerolog.Logger

	retrieveTimeout time.Duration

	mu         sync.Mutex
	configured boolCache
	bioEnabled boolCache
	group      singleflight.Group

	now func() time.Time
}

// NewStore wires the credential store to its persistence backends.
func NewStore(kv kvstore.Store, secure securestore.Store, log zerolog.Logger) *Store {
	return &Store{
		kv:              kv,
		secure:          secure,
		log:             log,
		retrieveTimeout: defaultRetrieveTimeout,
		now:             time.Now,
	}
}

// StoreSecret persists the verification record and writes the raw secret
// into the platform secure store. When biometric gating is requested but
// rejected by the platform, the secret degrades to an ungated write and the
// returned flag records that biometric protection is off. The secret is
// never dropped and gating is never falsely reported.
func (s *Store) StoreSecret(ctx context.Context, secret string, gateWithBiometric bool) (bool, error) {
	if secret == "" {
		return false, vaulterr.New(vaulterr.CodeValidation, "master secret cannot be empty")
	}

	salt, err := krypto.NewSalt()
	if err != nil {
		return false, err
	}
	hash, err := auth.HashPassword(secret, salt)
	if err != nil {
		return false, err
	}

	record := CredentialRecord{
		PasswordHash:   hex.EncodeToString(hash),
		Salt:           hex.EncodeToString(salt),
		LastVerifiedAt: s.now().UnixMilli(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "encode credential record", err)
	}
	if err := s.kv.Set(ctx, keyCredential, string(encoded)); err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "persist credential record", err)
	}

	biometricEnabled := false
	if gateWithBiometric {
		gated := securestore.Policy{Control: securestore.AccessControlBiometry, Prompt: "Unlock your vault"}
		if err := s.secure.SetSecret(ctx, SecureService, SecureAccount, secret, gated); err != nil {
			s.log.Warn().Err(err).Msg("biometric-gated storage rejected, falling back to ungated store")
		} else {
			biometricEnabled = true
		}
	}
	if !biometricEnabled {
		ungated := securestore.Policy{Control: securestore.AccessControlNone}
		if err := s.secure.SetSecret(ctx, SecureService, SecureAccount, secret, ungated); err != nil {
			return false, vaulterr.Wrap(vaulterr.CodeStorage, "store master secret", err)
		}
	}

	if err := s.kv.Set(ctx, keyBiometricEnabled, strconv.FormatBool(biometricEnabled)); err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "persist biometric flag", err)
	}

	s.invalidateStatus()
	s.log.Info().Bool("biometric", biometricEnabled).Msg("master secret stored")
	return biometricEnabled, nil
}

// RetrieveSecret reads the raw master secret back through the platform
// prompt. The platform call runs under an explicit timeout; exceeding it is
// a timeout error, distinct from the user cancelling the prompt.
func (s *Store) RetrieveSecret(ctx context.Context, prompt string) (string, error) {
	enabled, err := s.IsBiometricEnabled(ctx)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "", vaulterr.New(vaulterr.CodeNotConfigured, "biometric retrieval is not enabled")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.retrieveTimeout)
	defer cancel()

	type outcome struct {
		value string
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		policy := securestore.Policy{Control: securestore.AccessControlBiometry, Prompt: prompt}
		value, err := s.secure.GetSecret(callCtx, SecureService, SecureAccount, policy)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", vaulterr.New(vaulterr.CodeTimeout, "secure store call timed out")
		}
		return "", callCtx.Err()
	case out := <-ch:
		switch {
		case out.err == nil:
			return out.value, nil
		case errors.Is(out.err, securestore.ErrPromptCancelled):
			return "", vaulterr.New(vaulterr.CodeAuthCancelled, "authentication cancelled")
		case errors.Is(out.err, securestore.ErrNotFound):
			return "", vaulterr.New(vaulterr.CodeNotConfigured, "no master secret stored")
		case errors.Is(out.err, context.DeadlineExceeded):
			return "", vaulterr.New(vaulterr.CodeTimeout, "secure store call timed out")
		default:
			return "", vaulterr.Wrap(vaulterr.CodeStorage, "read master secret", out.err)
		}
	}
}

// VerifyMasterPassword checks a typed password against the stored
// verification hash. Case-sensitive, constant-time comparison.
func (s *Store) VerifyMasterPassword(ctx context.Context, password string) (bool, error) {
	raw, found, err := s.kv.Get(ctx, keyCredential)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "read credential record", err)
	}
	if !found {
		return false, vaulterr.New(vaulterr.CodeNotConfigured, "no master credential configured")
	}

	var record CredentialRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "decode credential record", err)
	}
	hash, err := hex.DecodeString(record.PasswordHash)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "decode stored hash", err)
	}
	salt, err := hex.DecodeString(record.Salt)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "decode stored salt", err)
	}

	ok, err := auth.VerifyPassword(password, hash, salt)
	if err != nil {
		return false, err
	}
	if ok {
		record.LastVerifiedAt = s.now().UnixMilli()
		if encoded, err := json.Marshal(record); err == nil {
			if err := s.kv.Set(ctx, keyCredential, string(encoded)); err != nil {
				s.log.Warn().Err(err).Msg("update last-verified timestamp failed, continuing")
			}
		}
	}
	return ok, nil
}

// IsConfigured reports whether a master credential exists. Short-TTL cached;
// concurrent misses collapse into one backing read.
func (s *Store) IsConfigured(ctx context.Context) (bool, error) {
	return s.cachedStatus(ctx, "configured", &s.configured, func(ctx context.Context) (bool, error) {
		_, found, err := s.kv.Get(ctx, keyCredential)
		if err != nil {
			return false, vaulterr.Wrap(vaulterr.CodeStorage, "read credential record", err)
		}
		return found, nil
	})
}

// IsBiometricEnabled reports whether the stored secret is biometric-gated.
func (s *Store) IsBiometricEnabled(ctx context.Context) (bool, error) {
	return s.cachedStatus(ctx, "biometric", &s.bioEnabled, func(ctx context.Context) (bool, error) {
		raw, found, err := s.kv.Get(ctx, keyBiometricEnabled)
		if err != nil {
			return false, vaulterr.Wrap(vaulterr.CodeStorage, "read biometric flag", err)
		}
		return found && raw == "true", nil
	})
}

func (s *Store) cachedStatus(ctx context.Context, name string, cache *boolCache, load func(context.Context) (bool, error)) (bool, error) {
	s.mu.Lock()
	if cache.valid(s.now()) {
		value := cache.value
		s.mu.Unlock()
		return value, nil
	}
	s.mu.Unlock()

	// The coalesced load serves every waiter, so it must not die with the
	// first caller's context.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		value, err := load(loadCtx)
		if err != nil {
			return false, err
		}
		s.mu.Lock()
		*cache = boolCache{value: value, set: true, expiresAt: s.now().Add(statusCacheTTL)}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// invalidateStatus drops both status caches. Every mutation path calls this
// synchronously: a stale read after a mutation is a correctness bug, not an
// acceptable staleness window.
func (s *Store) invalidateStatus() {
	s.mu.Lock()
	s.configured = boolCache{}
	s.bioEnabled = boolCache{}
	s.mu.Unlock()
}

// RemoveSecret clears the stored secret, credential record and flags.
func (s *Store) RemoveSecret(ctx context.Context) error {
	if err := s.secure.ClearSecret(ctx, SecureService); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "clear master secret", err)
	}
	if err := s.kv.MultiRemove(ctx, []string{keyCredential, keyBiometricEnabled}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "clear credential state", err)
	}
	s.invalidateStatus()
	s.log.Info().Msg("master secret removed")
	return nil
}

// SetRetrieveTimeout overrides the platform call bound.
func (s *Store) SetRetrieveTimeout(d time.Duration) {
	if d > 0 {
		s.retrieveTimeout = d
	}
}
