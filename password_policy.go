package accounts

import (
	"errors"
	"strings"
)

// MinPasswordLength is the policy floor for every credential in the system.
const MinPasswordLength = 8

// commonPasswords is a short deny list of passwords seen in breach corpora.
// Matching is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password":   {},
	"password1":  {},
	"passw0rd":   {},
	"12345678":   {},
	"123456789":  {},
	"1234567890": {},
	"qwerty123":  {},
	"qwertyuiop": {},
	"iloveyou":   {},
	"admin123":   {},
	"letmein1":   {},
	"welcome1":   {},
	"football":   {},
	"sunshine":   {},
	"monkey123":  {},
}

var (
	errPasswordTooShort = errors.New("password must contain at least 8 characters")
	errPasswordNumeric  = errors.New("password cannot be entirely numeric")
	errPasswordCommon   = errors.New("password is too common")
	errPasswordSimilar  = errors.New("password is too similar to your personal information")
)

// ValidatePasswordPolicy applies the platform password rules: minimum
// length, all-numeric rejection, common-password rejection, and similarity
// to the provided identity attributes (email, names). It returns the first
// violated rule; callers surface it as a field-level validation failure.
func ValidatePasswordPolicy(password string, identity ...string) error {
	if len(password) < MinPasswordLength {
		return errPasswordTooShort
	}

	if isAllNumeric(password) {
		return errPasswordNumeric
	}

	if _, found := commonPasswords[strings.ToLower(password)]; found {
		return errPasswordCommon
	}

	lowered := strings.ToLower(password)
	for _, attr := range identity {
		for _, part := range identityParts(attr) {
			if len(part) < 4 {
				continue
			}
			if strings.Contains(lowered, part) || strings.Contains(part, lowered) {
				return errPasswordSimilar
			}
		}
	}

	return nil
}

func isAllNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// identityParts splits an attribute into comparable fragments: an email
// yields its local part and domain labels, names yield themselves.
func identityParts(attr string) []string {
	attr = strings.ToLower(strings.TrimSpace(attr))
	if attr == "" {
		return nil
	}

	seps := func(r rune) bool {
		return r == '@' || r == '.' || r == '-' || r == '_' || r == ' '
	}

	parts := strings.FieldsFunc(attr, seps)
	return append(parts, attr)
}
