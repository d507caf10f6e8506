// Package kvstore is the persistent string key-value store the vault core
// writes its non-secret state to (session anchors, flags, credential
// records). Multi-key operations carry no transactional guarantee: they are
// sequenced best effort, partial failures are logged and iteration
// continues.
package kvstore

import "context"

// Store is the persistence contract. Values are opaque strings; callers
// must not assume atomicity across keys.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	MultiSet(ctx context.Context, pairs map[string]string) error
	MultiRemove(ctx context.Context, keys []string) error
}
