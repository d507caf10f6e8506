// Package securestore wraps the platform secure credential store. The raw
// master secret only ever lives here, never in the regular key-value store.
// Reads under a biometric-gated policy may trigger an OS prompt.
package securestore

import (
	"context"
	"errors"
)

// AccessControl selects the platform access-control mode for a secret.
type AccessControl string

const (
	// AccessControlNone stores the secret behind the device unlock only.
	AccessControlNone AccessControl = "none"
	// AccessControlBiometry requires a biometric/passcode prompt on read.
	AccessControlBiometry AccessControl = "biometry"
)

// Policy describes how a secret is protected and, for gated reads, what the
// user-facing prompt says.
type Policy struct {
	Control AccessControl
	Prompt  string
}

var (
	// ErrNotFound indicates no secret is stored under the service/account.
	ErrNotFound = errors.New("securestore: item not found")
	// ErrAccessControlUnsupported indicates the platform rejected the
	// requested access-control mode; callers fall back to an ungated write.
	ErrAccessControlUnsupported = errors.New("securestore: access control not supported on this platform")
	// ErrPromptCancelled indicates the user dismissed the unlock prompt.
	ErrPromptCancelled = errors.New("securestore: user cancelled authentication")
)

// Store is the platform secure store contract.
type Store interface {
	SetSecret(ctx context.Context, service, account, value string, p Policy) error
	GetSecret(ctx context.Context, service, account string, p Policy) (string, error)
	ClearSecret(ctx context.Context, service string) error
}
