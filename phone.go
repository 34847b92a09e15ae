package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

const phoneRegion = "RU"

// NormalizePhone validates a storefront phone number and returns its
// canonical stored form (+7XXXXXXXXXX). The three accepted spellings are
// +7XXXXXXXXXX, 7XXXXXXXXXX, and 8XXXXXXXXXX; anything else is rejected.
// An empty input is returned as is, the field is optional.
func NormalizePhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", nil
	}

	cleaned := cleanPhone(phone)

	switch {
	case strings.HasPrefix(cleaned, "+7") && len(cleaned) == 12:
		// already in canonical shape
	case strings.HasPrefix(cleaned, "7") && len(cleaned) == 11:
		cleaned = "+" + cleaned
	case strings.HasPrefix(cleaned, "8") && len(cleaned) == 11:
		cleaned = "+7" + cleaned[1:]
	default:
		return "", invalidPhoneError(phone)
	}

	num, err := phonenumbers.Parse(cleaned, phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", invalidPhoneError(phone)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func cleanPhone(phone string) string {
	var b strings.Builder
	for _, c := range phone {
		if (c >= '0' && c <= '9') || c == '+' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func invalidPhoneError(phone string) error {
	return errors.New(
		"enter a valid phone number, e.g. +79991234567, 79991234567 or 89991234567",
		errors.CategoryValidation,
	).WithMetadata(map[string]any{"phone": phone})
}
