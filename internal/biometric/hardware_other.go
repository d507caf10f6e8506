//go:build !darwin

package biometric

// NewPlatformHardware returns the deterministic fallback on platforms
// without a supported secure element.
func NewPlatformHardware() Hardware {
	return NewFallback()
}
