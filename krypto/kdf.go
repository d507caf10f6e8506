package krypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/singleflight"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const (
	// DerivedKeyLen is the fixed output length of DeriveKey in bytes.
	DerivedKeyLen = 32

	// keyCacheTTL amortizes the deliberately slow stretching. Minutes, not
	// seconds: a cache miss costs a full PBKDF2 run.
	keyCacheTTL = 5 * time.Minute
)

// cachedKey is a TTL cache entry for a derived key.
type cachedKey struct {
	key       []byte
	expiresAt time.Time
}

func (c cachedKey) valid(now time.Time) bool {
	return now.Before(c.expiresAt)
}

// Engine performs password stretching with a fingerprint-keyed result cache.
// Concurrent derivations with identical inputs collapse into one computation.
// Construct exactly one Engine per process and pass it to consumers.
type Engine struct {
	mu    sync.Mutex
	cache map[string]cachedKey
	group singleflight.Group

	// derivations counts full stretching runs, i.e. cache misses that were
	// not coalesced onto another in-flight call.
	derivations int

	now func() time.Time
}

// NewEngine returns a ready derivation engine.
func NewEngine() *Engine {
	return &Engine{
		cache: make(map[string]cachedKey),
		now:   time.Now,
	}
}

// fingerprint produces the cache key for (password, salt, iterations).
// The cache index must never contain the raw password; a one-way digest
// keeps the secret out of the map.
func fingerprint(password string, salt []byte, iterations int) string {
	h := sha256.New()
	h.Write([]byte(password))
	h.Write([]byte{0})
	h.Write(salt)
	h.Write([]byte{0})
	var iter [8]byte
	binary.BigEndian.PutUint64(iter[:], uint64(iterations))
	h.Write(iter[:])
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveKey stretches password with PBKDF2-HMAC-SHA256 into a DerivedKeyLen
// key. Deterministic for identical inputs. Repeated calls within the cache
// TTL return without paying the stretching cost again; callers receive a
// private copy and may zeroize it freely.
func (e *Engine) DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, vaulterr.New(vaulterr.CodeValidation, "password is required")
	}
	if len(salt) == 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "salt is required")
	}
	if iterations <= 0 {
		return nil, vaulterr.New(vaulterr.CodeValidation, "iterations must be positive")
	}

	fp := fingerprint(password, salt, iterations)

	e.mu.Lock()
	if entry, ok := e.cache[fp]; ok && entry.valid(e.now()) {
		out := make([]byte, len(entry.key))
		copy(out, entry.key)
		e.mu.Unlock()
		return out, nil
	}
	delete(e.cache, fp)
	e.mu.Unlock()

	v, err, _ := e.group.Do(fp, func() (interface{}, error) {
		key := pbkdf2.Key([]byte(password), salt, iterations, DerivedKeyLen, sha256.New)

		e.mu.Lock()
		e.derivations++
		e.cache[fp] = cachedKey{key: key, expiresAt: e.now().Add(keyCacheTTL)}
		e.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	key := v.([]byte)
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

// Purge zeroizes and drops every cached derived key. Wired to the logout
// path so keys do not outlive the session they belong to.
func (e *Engine) Purge() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for fp, entry := range e.cache {
		Zeroize(entry.key)
		delete(e.cache, fp)
	}
}

// CacheLen reports the number of live cache entries.
func (e *Engine) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}
