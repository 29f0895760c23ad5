package password

import "strings"

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Byte length, matching the register endpoint's minimum.
	n := len(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RejectVeryWeak {
		if looksVeryWeak(password) {
			return ErrWeakPassword
		}
	}

	return nil
}

// looksVeryWeak is intentionally minimal. It is not a zxcvbn-style estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	// Reject if all same char.
	allSame := true
	var first rune
	for i, r := range s {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	// Reject common trivial patterns.
	switch strings.ToLower(s) {
	case "password", "password123", "123456", "1234567", "12345678", "123456789", "qwerty", "qwerty123", "abc123":
		return true
	}

	return false
}
