package krypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.<>?"

	// similarChars are visually ambiguous in common UI fonts.
	similarChars = "Il1O0o5S"
)

// PasswordOptions selects the character classes for generated passwords.
type PasswordOptions struct {
	Upper   bool
	Lower   bool
	Digits  bool
	Symbols bool

	// ExcludeSimilar drops visually ambiguous characters (I, l, 1, O, 0, ...).
	ExcludeSimilar bool
}

// DefaultPasswordOptions enables every character class.
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{Upper: true, Lower: true, Digits: true, Symbols: true}
}

func (o PasswordOptions) charset() string {
	var b strings.Builder
	if o.Upper {
		b.WriteString(upperChars)
	}
	if o.Lower {
		b.WriteString(lowerChars)
	}
	if o.Digits {
		b.WriteString(digitChars)
	}
	if o.Symbols {
		b.WriteString(symbolChars)
	}
	set := b.String()
	if !o.ExcludeSimilar {
		return set
	}
	var filtered strings.Builder
	for _, r := range set {
		if !strings.ContainsRune(similarChars, r) {
			filtered.WriteRune(r)
		}
	}
	return filtered.String()
}

// GeneratePassword returns a random password of the given length drawn from
// the selected character classes. Selection uses the crypto random source
// only.
func GeneratePassword(length int, opts PasswordOptions) (string, error) {
	if length <= 0 {
		return "", vaulterr.New(vaulterr.CodeValidation, "password length must be positive")
	}

	charset := opts.charset()
	if charset == "" {
		return "", vaulterr.New(vaulterr.CodeValidation, "no character classes selected")
	}

	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random index: %w", err)
		}
		out[i] = charset[idx.Int64()]
	}
	return string(out), nil
}

// PasswordStrength scores a password 0 (guessable) to 4 (strong) with zxcvbn.
func PasswordStrength(password string) int {
	return zxcvbn.PasswordStrength(password, nil).Score
}
