package auth

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// ValidateOptions tunes master-password validation.
type ValidateOptions struct {
	MinLength      int
	MinZXCVBNScore int
	EnableHIBP     bool
}

// DefaultValidateOptions applies the baseline policy without network checks.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{MinLength: 12, MinZXCVBNScore: 3}
}

// ValidateMasterPassword applies the structural policy requirements.
func ValidateMasterPassword(pw string) error {
	if len(pw) < 12 {
		return vaulterr.New(vaulterr.CodeValidation, "password must be at least 12 characters long")
	}
	if !hasUpper(pw) {
		return vaulterr.New(vaulterr.CodeValidation, "password must include an uppercase letter")
	}
	if !hasDigit(pw) {
		return vaulterr.New(vaulterr.CodeValidation, "password must include a digit")
	}
	if !hasSpecial(pw) {
		return vaulterr.New(vaulterr.CodeValidation, "password must include a special character")
	}
	return nil
}

// ValidateMasterPasswordAdvanced additionally enforces a strength score and,
// when enabled, rejects passwords found in the HIBP breach corpus. HIBP
// lookups fail open: a network error does not block setup.
func ValidateMasterPasswordAdvanced(ctx context.Context, pw string, opts ValidateOptions) error {
	if len(pw) < opts.MinLength {
		return vaulterr.New(vaulterr.CodeValidation,
			fmt.Sprintf("password must be at least %d characters long", opts.MinLength))
	}
	if err := ValidateMasterPassword(pw); err != nil {
		return err
	}
	if score := krypto.PasswordStrength(pw); score < opts.MinZXCVBNScore {
		return vaulterr.New(vaulterr.CodeValidation,
			fmt.Sprintf("password strength %d is below the required %d", score, opts.MinZXCVBNScore))
	}
	if opts.EnableHIBP {
		res, err := CheckHIBP(ctx, pw)
		if err == nil && res.Found {
			return vaulterr.New(vaulterr.CodeValidation,
				fmt.Sprintf("password appears in %d known breaches", res.Count))
		}
	}
	return nil
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
