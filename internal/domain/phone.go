package domain

import (
	"fmt"
	"strings"
)

// phonePrefixes is the fixed set of local carrier prefixes accepted for OTP delivery.
var phonePrefixes = []string{"013", "014", "015", "016", "017", "018", "019"}

const phoneLength = 11

// NormalizePhone canonicalizes a local mobile number: whitespace is trimmed
// and an international form ("+8801..." / "8801...") is reduced to the
// trailing 11 digits.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	if len(p) > phoneLength {
		p = p[len(p)-phoneLength:]
	}
	return p
}

// ValidatePhone checks that a normalized number is 11 digits long and starts
// with an accepted carrier prefix.
func ValidatePhone(phone string) error {
	if len(phone) != phoneLength {
		return fmt.Errorf("phone number must be %d digits: %w", phoneLength, ErrValidation)
	}
	for _, c := range phone {
		if c < '0' || c > '9' {
			return fmt.Errorf("phone number must be numeric: %w", ErrValidation)
		}
	}
	for _, prefix := range phonePrefixes {
		if strings.HasPrefix(phone, prefix) {
			return nil
		}
	}
	return fmt.Errorf("phone number must start with one of %s: %w", strings.Join(phonePrefixes, ", "), ErrValidation)
}
