package biometric

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TuPhung369/PasswordEpic-sub005/internal/kvstore"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// Persistence keys for gate state.
const (
	keyEnabled     = "biometric.enabled"
	keyKeyHandle   = "biometric.key_handle"
	keyFallbackKey = "biometric.key_fallback"
)

// fallbackKeyHandle marks a placeholder provisioned on key-less platforms.
// It must never collide with a real public key handle.
const fallbackKeyHandle = "fallback-virtual-key-v1"

// capabilityCacheTTL is short on purpose. Failures are cached too, so a
// persistently broken sensor is not hot-looped.
const capabilityCacheTTL = 10 * time.Second

type cachedCapability struct {
	cap       Capability
	expiresAt time.Time
}

func (c cachedCapability) valid(now time.Time) bool {
	return now.Before(c.expiresAt)
}

// Gate drives capability detection, hardware-key provisioning and the
// authentication flow. One Gate per process; construct it with the platform
// Hardware and the shared key-value store.
type Gate struct {
	hw    Hardware
	store kvstore.Store
	log   zerolog.Logger

	mu      sync.Mutex
	capScan cachedCapability

	setupGroup singleflight.Group

	now func() time.Time
}

// NewGate wires a gate to its hardware and persistence.
func NewGate(hw Hardware, store kvstore.Store, log zerolog.Logger) *Gate {
	return &Gate{hw: hw, store: store, log: log, now: time.Now}
}

// CheckCapability queries sensor availability, serving a briefly cached
// result when fresh. A query failure is converted into an unavailable
// capability and cached under the same TTL.
func (g *Gate) CheckCapability(ctx context.Context) Capability {
	g.mu.Lock()
	if g.capScan.valid(g.now()) {
		scan := g.capScan.cap
		g.mu.Unlock()
		return scan
	}
	g.mu.Unlock()

	scan, err := g.hw.IsSensorAvailable(ctx)
	if err != nil {
		scan = Capability{Available: false, Kind: KindNone, Reason: "sensor query failed"}
		g.log.Warn().Err(err).Msg("biometric sensor query failed")
	}

	g.mu.Lock()
	g.capScan = cachedCapability{cap: scan, expiresAt: g.now().Add(capabilityCacheTTL)}
	g.mu.Unlock()
	return scan
}

// InvalidateCapability drops the cached capability. Wired to enable/disable
// mutations.
func (g *Gate) InvalidateCapability() {
	g.mu.Lock()
	g.capScan = cachedCapability{}
	g.mu.Unlock()
}

// Provision requests a hardware-backed keypair and marks setup enabled.
// On platforms where hardware key creation fails, a clearly marked
// placeholder value is recorded instead and setup still succeeds: the
// degraded mode is deliberate and distinguishable via IsFallback, while
// callers see plain success.
func (g *Gate) Provision(ctx context.Context) error {
	handle, err := g.hw.CreateHardwareKey(ctx)
	fallback := false
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyCreationUnsupported):
		handle = fallbackKeyHandle
		fallback = true
		g.log.Warn().Msg("hardware key creation unsupported, provisioning fallback key")
	default:
		return vaulterr.Wrap(vaulterr.CodeNotAvailable, "hardware key creation failed", err)
	}

	pairs := map[string]string{
		keyEnabled:   "true",
		keyKeyHandle: handle,
	}
	if fallback {
		pairs[keyFallbackKey] = "true"
	} else {
		// Stale fallback markers from an earlier provisioning must not
		// survive a successful hardware provision.
		if err := g.store.Remove(ctx, keyFallbackKey); err != nil {
			g.log.Warn().Err(err).Msg("clear fallback marker failed, continuing")
		}
	}
	if err := g.store.MultiSet(ctx, pairs); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "persist biometric setup", err)
	}

	g.InvalidateCapability()
	g.log.Info().Bool("fallback", fallback).Msg("biometric setup provisioned")
	return nil
}

// IsFallback reports whether setup runs on the placeholder key rather than
// a genuine hardware key. Downstream authentication branches on this.
func (g *Gate) IsFallback(ctx context.Context) (bool, error) {
	value, found, err := g.store.Get(ctx, keyFallbackKey)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeStorage, "read fallback marker", err)
	}
	return found && value == "true", nil
}

// IsSetup reports whether biometric unlock is configured: the enabled flag
// is set AND a hardware key is present (or the platform runs the key-less
// fallback). Concurrent callers collapse into one in-flight query.
func (g *Gate) IsSetup(ctx context.Context) (bool, error) {
	v, err, _ := g.setupGroup.Do("setup", func() (interface{}, error) {
		enabled, found, err := g.store.Get(ctx, keyEnabled)
		if err != nil {
			return false, vaulterr.Wrap(vaulterr.CodeStorage, "read enabled flag", err)
		}
		if !found || enabled != "true" {
			return false, nil
		}

		fallback, err := g.IsFallback(ctx)
		if err != nil {
			return false, err
		}
		if fallback {
			return true, nil
		}

		exists, err := g.hw.HardwareKeyExists(ctx)
		if err != nil {
			return false, vaulterr.Wrap(vaulterr.CodeNotAvailable, "hardware key query failed", err)
		}
		return exists, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Authenticate issues the biometric prompt and, on success, returns an
// opaque per-attempt token. Explicit cancellation maps to the cancelled
// code so callers can retry without re-provisioning; cached capability and
// setup state are untouched either way.
func (g *Gate) Authenticate(ctx context.Context, promptText string) (string, error) {
	setup, err := g.IsSetup(ctx)
	if err != nil {
		return "", err
	}
	if !setup {
		return "", vaulterr.New(vaulterr.CodeNotConfigured, "biometric unlock is not set up")
	}

	if promptText == "" {
		promptText = "Authenticate to unlock your vault"
	}
	if err := g.hw.PromptUser(ctx, promptText, "", ""); err != nil {
		if errors.Is(err, ErrPromptCancelled) {
			return "", vaulterr.New(vaulterr.CodeAuthCancelled, "authentication cancelled")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", vaulterr.Wrap(vaulterr.CodeTimeout, "biometric prompt timed out", err)
		}
		return "", vaulterr.Wrap(vaulterr.CodeAuthFailed, "biometric prompt failed", err)
	}

	token, err := krypto.RandomHex(32)
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeAuthFailed, "generate attempt token", err)
	}
	return token, nil
}

// Deprovision deletes the hardware key material and clears the enabled
// flag. The flag is cleared even when the platform reports no key present.
func (g *Gate) Deprovision(ctx context.Context) error {
	if err := g.hw.DeleteHardwareKey(ctx); err != nil && !errors.Is(err, ErrNoHardwareKey) {
		g.log.Warn().Err(err).Msg("hardware key deletion failed, clearing flags anyway")
	}

	if err := g.store.MultiRemove(ctx, []string{keyEnabled, keyKeyHandle, keyFallbackKey}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "clear biometric setup", err)
	}

	g.InvalidateCapability()
	g.log.Info().Msg("biometric setup removed")
	return nil
}
