// Package biometric gates access to the raw master secret behind the device
// biometric sensor. Platform divergence (real secure element vs virtualized
// test hardware) is routed through the Hardware interface and its explicit
// result types, never through string-matching of error messages.
package biometric

import (
	"context"
	"errors"
)

// SensorKind identifies the biometric sensor variant.
type SensorKind string

const (
	KindFingerprint SensorKind = "fingerprint"
	KindFace        SensorKind = "face"
	KindGeneric     SensorKind = "generic"
	KindNone        SensorKind = "none"
)

// Capability reports sensor availability. Reason carries a non-sensitive
// explanation when the sensor is unavailable.
type Capability struct {
	Available bool
	Kind      SensorKind
	Reason    string
}

var (
	// ErrKeyCreationUnsupported signals a platform without hardware-backed
	// key creation (e.g. an emulator); the gate falls back to a placeholder.
	ErrKeyCreationUnsupported = errors.New("biometric: hardware key creation not supported")
	// ErrPromptCancelled signals an explicit user cancel of the prompt.
	ErrPromptCancelled = errors.New("biometric: user cancelled prompt")
	// ErrNoHardwareKey signals a delete of a key that does not exist.
	ErrNoHardwareKey = errors.New("biometric: no hardware key present")
)

// Hardware is the platform biometric API.
type Hardware interface {
	IsSensorAvailable(ctx context.Context) (Capability, error)
	// CreateHardwareKey provisions a hardware-backed signing keypair and
	// returns its public key handle.
	CreateHardwareKey(ctx context.Context) (string, error)
	DeleteHardwareKey(ctx context.Context) error
	HardwareKeyExists(ctx context.Context) (bool, error)
	// PromptUser shows the biometric prompt. It returns nil on success,
	// ErrPromptCancelled on explicit cancel, or another error on failure.
	PromptUser(ctx context.Context, title, subtitle, message string) error
}
