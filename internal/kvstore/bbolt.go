package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

var kvBucket = []byte("kv")

// Bolt persists key-value state in a bbolt file.
type Bolt struct {
	db  *bolt.DB
	log zerolog.Logger
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string, log zerolog.Logger) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open key-value store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}
	return &Bolt{db: db, log: log}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(kvBucket).Get([]byte(key)); raw != nil {
			value = string(raw)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, vaulterr.Wrap(vaulterr.CodeStorage, "read key", err)
	}
	return value, found, nil
}

func (b *Bolt) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "write key", err)
	}
	return nil
}

func (b *Bolt) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Delete([]byte(key))
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "remove key", err)
	}
	return nil
}

func (b *Bolt) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, found, err := b.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			out[key] = value
		}
	}
	return out, nil
}

func (b *Bolt) MultiSet(ctx context.Context, pairs map[string]string) error {
	var errs []error
	for key, value := range pairs {
		if err := b.Set(ctx, key, value); err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("multi-set: write failed, continuing")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bolt) MultiRemove(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := b.Remove(ctx, key); err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("multi-remove: delete failed, continuing")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Store = (*Bolt)(nil)
