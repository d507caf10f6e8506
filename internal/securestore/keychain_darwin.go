//go:build darwin

package securestore

import (
	"context"
	"fmt"

	keychain "github.com/keybase/go-keychain"
)

const keychainLabel = "PasswordEpic vault secret"

// Keychain stores secrets in the macOS Keychain. Items are device-local and
// never synchronized; a biometry policy maps to the passcode-set-required
// accessibility class so the OS mediates access.
type Keychain struct{}

// NewPlatformStore returns the macOS Keychain-backed store.
func NewPlatformStore() Store {
	return &Keychain{}
}

func accessibleFor(p Policy) keychain.Accessible {
	if p.Control == AccessControlBiometry {
		return keychain.AccessibleWhenPasscodeSetThisDeviceOnly
	}
	return keychain.AccessibleWhenUnlockedThisDeviceOnly
}

func (k *Keychain) SetSecret(ctx context.Context, service, account, value string, p Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item := keychain.NewGenericPassword(service, account, keychainLabel, []byte(value), "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(accessibleFor(p))

	if err := keychain.AddItem(item); err != nil {
		if err == keychain.ErrorDuplicateItem {
			query := keychain.NewGenericPassword(service, account, "", nil, "")
			update := keychain.NewItem()
			update.SetData([]byte(value))
			if uerr := keychain.UpdateItem(query, update); uerr != nil {
				return fmt.Errorf("update keychain item: %w", uerr)
			}
			return nil
		}
		return fmt.Errorf("add keychain item: %w", err)
	}
	return nil
}

func (k *Keychain) GetSecret(ctx context.Context, service, account string, p Policy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := keychain.GetGenericPassword(service, account, "", "")
	if err != nil {
		if err == keychain.ErrorItemNotFound {
			return "", ErrNotFound
		}
		if err == keychain.ErrorAuthFailed {
			return "", ErrPromptCancelled
		}
		return "", fmt.Errorf("read keychain item: %w", err)
	}
	if data == nil {
		return "", ErrNotFound
	}
	return string(data), nil
}

func (k *Keychain) ClearSecret(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	query := keychain.NewGenericPassword(service, "", "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && err != keychain.ErrorItemNotFound {
		return fmt.Errorf("delete keychain item: %w", err)
	}
	return nil
}

var _ Store = (*Keychain)(nil)
