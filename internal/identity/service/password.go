package service

import (
	"fmt"
	"unicode"
)

const minPasswordLength = 8

// ValidatePasswordStrength enforces the account password policy: at least
// eight characters with an upper case letter, a lower case letter and a
// digit. Returns ErrWeakPassword with the failing rule attached.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("%w: must contain an upper case letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: must contain a lower case letter", ErrWeakPassword)
	case !hasDigit:
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}
	return nil
}
