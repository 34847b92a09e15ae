package accounts

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// RequireAssent validates an explicit boolean acknowledgement, e.g. terms
// acceptance or a deletion irreversibility confirmation.
func RequireAssent(message string) validation.RuleFunc {
	return func(value any) error {
		accepted, _ := value.(bool)
		if !accepted {
			return errors.New(message)
		}
		return nil
	}
}

// PhoneRule validates an optional phone number against the regional format.
func PhoneRule(value any) error {
	phone, _ := value.(string)
	if phone == "" {
		return nil
	}
	if _, err := NormalizePhone(phone); err != nil {
		return err
	}
	return nil
}

// PasswordPolicyRule applies the platform password policy, comparing the
// candidate against the given identity attributes for similarity.
func PasswordPolicyRule(identity ...string) validation.RuleFunc {
	return func(value any) error {
		password, _ := value.(string)
		return ValidatePasswordPolicy(password, identity...)
	}
}

// FormatValidationErrorToMap flattens a validation failure into a
// field to message map for rendering. Wrapped rich errors are unwrapped
// down to the underlying ozzo error set.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if !asValidationErrors(err, &verrs) {
		out["form"] = err.Error()
		return out
	}

	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}

	return out
}

func asValidationErrors(err error, target *validation.Errors) bool {
	for err != nil {
		if verrs, ok := err.(validation.Errors); ok {
			*target = verrs
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
