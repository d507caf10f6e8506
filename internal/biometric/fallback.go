package biometric

import (
	"context"
	"sync"
	"time"

	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
)

// Fallback is the deterministic Hardware implementation for environments
// without a secure element (virtualized/test hardware). Its defaults mimic
// an emulator: a generic sensor that accepts every prompt, and hardware key
// creation that is not supported. Tests flip the knobs to simulate real
// hardware, sensor failures, cancellations and slow platform calls.
type Fallback struct {
	mu        sync.Mutex
	keyExists bool

	Sensor    Capability
	SensorErr error
	CreateErr error
	PromptErr error

	// Delays stall the corresponding call to exercise caller timeouts and
	// concurrency collapse.
	ExistsDelay time.Duration
	PromptDelay time.Duration

	SensorCalls int
	ExistsCalls int
	PromptCalls int
}

// NewFallback returns a Fallback with emulator defaults.
func NewFallback() *Fallback {
	return &Fallback{
		Sensor:    Capability{Available: true, Kind: KindGeneric},
		CreateErr: ErrKeyCreationUnsupported,
	}
}

func (f *Fallback) IsSensorAvailable(ctx context.Context) (Capability, error) {
	if err := ctx.Err(); err != nil {
		return Capability{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SensorCalls++
	if f.SensorErr != nil {
		return Capability{}, f.SensorErr
	}
	return f.Sensor, nil
}

func (f *Fallback) CreateHardwareKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	handle, err := krypto.RandomHex(16)
	if err != nil {
		return "", err
	}
	f.keyExists = true
	return "hwkey-" + handle, nil
}

func (f *Fallback) DeleteHardwareKey(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.keyExists {
		return ErrNoHardwareKey
	}
	f.keyExists = false
	return nil
}

func (f *Fallback) HardwareKeyExists(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.ExistsCalls++
	delay := f.ExistsDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyExists, nil
}

func (f *Fallback) PromptUser(ctx context.Context, title, subtitle, message string) error {
	f.mu.Lock()
	f.PromptCalls++
	delay := f.PromptDelay
	promptErr := f.PromptErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return promptErr
}

var _ Hardware = (*Fallback)(nil)
