package securestore

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value  string
	policy Policy
}

// Memory is an in-memory Store for tests. Knobs simulate platform behavior:
// rejected gated writes, prompt outcomes and slow reads.
type Memory struct {
	mu    sync.Mutex
	items map[string]map[string]memoryItem

	// RejectBiometry makes gated SetSecret calls fail like a platform
	// without the required hardware.
	RejectBiometry bool
	// PromptErr is returned by gated GetSecret reads (e.g. ErrPromptCancelled).
	PromptErr error
	// ReadDelay stalls GetSecret to exercise caller timeouts.
	ReadDelay time.Duration

	// GetCalls counts GetSecret invocations that reached the store.
	GetCalls int
}

// NewMemory returns an empty in-memory secure store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]map[string]memoryItem)}
}

func (m *Memory) SetSecret(ctx context.Context, service, account, value string, p Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Control == AccessControlBiometry && m.RejectBiometry {
		return ErrAccessControlUnsupported
	}
	if m.items[service] == nil {
		m.items[service] = make(map[string]memoryItem)
	}
	m.items[service][account] = memoryItem{value: value, policy: p}
	return nil
}

func (m *Memory) GetSecret(ctx context.Context, service, account string, p Policy) (string, error) {
	m.mu.Lock()
	delay := m.ReadDelay
	m.GetCalls++
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[service][account]
	if !ok {
		return "", ErrNotFound
	}
	if item.policy.Control == AccessControlBiometry && m.PromptErr != nil {
		return "", m.PromptErr
	}
	return item.value, nil
}

func (m *Memory) ClearSecret(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, service)
	return nil
}

// PolicyOf reports the stored policy for a secret, for assertions on the
// gated-vs-fallback write path.
func (m *Memory) PolicyOf(service, account string) (Policy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[service][account]
	return item.policy, ok
}

var _ Store = (*Memory)(nil)
