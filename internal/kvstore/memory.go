package kvstore

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-memory Store for tests and ephemeral use. FailKeys lets
// tests inject per-key storage failures.
type Memory struct {
	mu       sync.Mutex
	data     map[string]string
	FailKeys map[string]error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) fail(key string) error {
	if m.FailKeys == nil {
		return nil
	}
	return m.FailKeys[key]
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return "", false, err
	}
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, found, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			out[key] = value
		}
	}
	return out, nil
}

func (m *Memory) MultiSet(ctx context.Context, pairs map[string]string) error {
	var errs []error
	for key, value := range pairs {
		if err := m.Set(ctx, key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Memory) MultiRemove(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := m.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var _ Store = (*Memory)(nil)
