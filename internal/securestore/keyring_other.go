//go:build !darwin

package securestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring stores secrets in the OS keyring (Secret Service on Linux,
// Credential Manager on Windows). These backends cannot attach a biometric
// access-control policy, so gated writes are rejected and the caller's
// graceful-degradation path takes over.
type Keyring struct{}

// NewPlatformStore returns the OS keyring-backed store.
func NewPlatformStore() Store {
	return &Keyring{}
}

func (k *Keyring) SetSecret(ctx context.Context, service, account, value string, p Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Control == AccessControlBiometry {
		return ErrAccessControlUnsupported
	}
	if err := keyring.Set(service, account, value); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *Keyring) GetSecret(ctx context.Context, service, account string, p Policy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return value, nil
}

func (k *Keyring) ClearSecret(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.DeleteAll(service); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

var _ Store = (*Keyring)(nil)
