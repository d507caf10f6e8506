// Package session maintains the dynamic per-login master key. The key is
// never persisted: it is re-derived from the authenticated identity plus two
// persisted, non-secret anchors (login timestamp and session salt), so the
// same key comes back bit-identical after a process restart.
package session

import (
	"context"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// Persistence keys for the session anchors.
const (
	keyLoginTS     = "session.login_ts"
	keySessionSalt = "session.salt"
	keyUserID      = "session.user_id"
	keyKeyFP       = "session.key_fp"
)

const (
	// Iterations is the session-tuned work factor: the key is re-derived on
	// every restart, so this tier trades stretching depth for latency. The
	// one-time credential check uses a far higher count.
	Iterations = 5000

	// keyCacheTTL bounds how long the derived key lives in memory unused.
	keyCacheTTL = 5 * time.Minute

	saltPrefixLen   = 8
	fingerprintLen  = 8
	anonymousMarker = "anonymous"
)

// Identity is the authenticated user this session belongs to.
type Identity struct {
	UserID string
	Email  string
}

// Key is an active session master key with its matching identifier.
type Key struct {
	Bytes     []byte
	SessionID string
}

// Verification is the outcome of VerifySession.
type Verification struct {
	Valid bool
	// Reason is set when Valid is false: ReasonNoSession or ReasonUserMismatch.
	Reason string
}

const (
	ReasonNoSession    = "no_session"
	ReasonUserMismatch = "user_mismatch"
)

type cachedSession struct {
	key       []byte
	sessionID string
	expiresAt time.Time
}

func (c cachedSession) valid(now time.Time) bool {
	return len(c.key) > 0 && now.Before(c.expiresAt)
}

// Manager derives and caches the session master key. The mutex doubles as
// the initialization guard: anchor creation happens-before any derivation
// that depends on it, so concurrent first calls cannot race a half-written
// anchor pair.
type Manager struct {
	engine *krypto.Engine
	store  kvstore.Store
	log    zerolog.Logger

	mu     sync.Mutex
	cached cachedSession

	now func() time.Time
}

// NewManager wires a session manager to the shared engine and store.
func NewManager(engine *krypto.Engine, store kvstore.Store, log zerolog.Logger) *Manager {
	return &Manager{engine: engine, store: store, log: log, now: time.Now}
}

// EffectiveKey returns the session master key for the authenticated
// identity, deriving and caching it as needed. Anchors are read from
// persistence, or created exactly once when absent, never rotated here.
func (m *Manager) EffectiveKey(ctx context.Context, id Identity) (Key, error) {
	if id.UserID == "" {
		return Key{}, vaulterr.New(vaulterr.CodeNotAuthenticated, "no authenticated user identity")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached.valid(m.now()) {
		return Key{Bytes: cloneBytes(m.cached.key), SessionID: m.cached.sessionID}, nil
	}

	loginTS, salt, err := m.anchors(ctx, id)
	if err != nil {
		return Key{}, err
	}

	// The composed string consumes a salt prefix, so a truncated persisted
	// salt is rejected here rather than read out of range below.
	saltBytes, err := hex.DecodeString(salt)
	if err != nil || len(saltBytes) == 0 || len(salt) < saltPrefixLen {
		return Key{}, vaulterr.New(vaulterr.CodeValidation, "persisted session salt is invalid")
	}

	composed := id.UserID + "|" + loginTS + "|" + emailOrAnonymous(id.Email) + "|" + salt[:saltPrefixLen]
	key, err := m.engine.DeriveKey(composed, saltBytes, Iterations)
	if err != nil {
		return Key{}, err
	}

	sessionID := hex.EncodeToString(key[:fingerprintLen])
	// The fingerprint is persisted only for session matching; a short key
	// prefix can never reconstruct the key.
	if err := m.store.Set(ctx, keyKeyFP, sessionID); err != nil {
		m.log.Warn().Err(err).Msg("persist session fingerprint failed, continuing")
	}

	m.cached = cachedSession{
		key:       cloneBytes(key),
		sessionID: sessionID,
		expiresAt: m.now().Add(keyCacheTTL),
	}
	return Key{Bytes: key, SessionID: sessionID}, nil
}

// anchors reads the persisted (loginTimestamp, sessionSalt) pair, creating
// both on a true fresh login start. Caller holds m.mu.
func (m *Manager) anchors(ctx context.Context, id Identity) (loginTS, salt string, err error) {
	stored, err := m.store.MultiGet(ctx, []string{keyLoginTS, keySessionSalt, keyUserID})
	if err != nil {
		return "", "", vaulterr.Wrap(vaulterr.CodeStorage, "read session anchors", err)
	}

	loginTS, hasTS := stored[keyLoginTS]
	salt, hasSalt := stored[keySessionSalt]
	if hasTS && hasSalt {
		if owner := stored[keyUserID]; owner != "" && owner != id.UserID {
			return "", "", vaulterr.New(vaulterr.CodeNotAuthenticated, "session belongs to a different user")
		}
		return loginTS, salt, nil
	}

	// Fresh login start: generate both anchors once and persist them as the
	// stable basis for every future re-derivation.
	loginTS = strconv.FormatInt(m.now().UnixMilli(), 10)
	salt, err = krypto.RandomHex(krypto.SaltLen)
	if err != nil {
		return "", "", err
	}
	pairs := map[string]string{
		keyLoginTS:     loginTS,
		keySessionSalt: salt,
		keyUserID:      id.UserID,
	}
	if err := m.store.MultiSet(ctx, pairs); err != nil {
		return "", "", vaulterr.Wrap(vaulterr.CodeStorage, "persist session anchors", err)
	}
	m.log.Info().Str("user_id", id.UserID).Msg("session anchors created")
	return loginTS, salt, nil
}

// VerifySession compares the persisted session owner with the current
// identity. Absent anchors and a user mismatch are both reported as invalid
// but with distinct reasons.
func (m *Manager) VerifySession(ctx context.Context, id Identity) (Verification, error) {
	stored, err := m.store.MultiGet(ctx, []string{keyLoginTS, keySessionSalt, keyUserID})
	if err != nil {
		return Verification{}, vaulterr.Wrap(vaulterr.CodeStorage, "read session anchors", err)
	}

	_, hasTS := stored[keyLoginTS]
	_, hasSalt := stored[keySessionSalt]
	if !hasTS || !hasSalt {
		return Verification{Valid: false, Reason: ReasonNoSession}, nil
	}
	if stored[keyUserID] != id.UserID {
		return Verification{Valid: false, Reason: ReasonUserMismatch}, nil
	}
	return Verification{Valid: true}, nil
}

// StartNewSession clears the persisted anchors and the in-memory key.
// Called only at the logout/fresh-login boundary; the next EffectiveKey
// call creates new anchors.
func (m *Manager) StartNewSession(ctx context.Context) error {
	m.mu.Lock()
	m.dropCachedLocked()
	m.mu.Unlock()

	if err := m.store.MultiRemove(ctx, []string{keyLoginTS, keySessionSalt, keyUserID, keyKeyFP}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "clear session anchors", err)
	}
	m.log.Info().Msg("session anchors cleared")
	return nil
}

// ClearCache zeroizes and drops the in-memory key without touching the
// persisted anchors: the session stays resumable.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCachedLocked()
}

func (m *Manager) dropCachedLocked() {
	krypto.Zeroize(m.cached.key)
	m.cached = cachedSession{}
}

func emailOrAnonymous(email string) string {
	if email == "" {
		return anonymousMarker
	}
	return email
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
