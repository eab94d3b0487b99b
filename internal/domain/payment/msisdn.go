package payment

import (
	"strings"

	"github.com/elektrahub/checkout/internal/domain/errors"
)

const (
	kenyaCountryCode = "254"
	msisdnLength     = 12
)

// NormalizePhoneNumber turns customer input such as "0712 345 678" or "+254712345678"
// into the 254XXXXXXXXX form M-Pesa expects.
func NormalizePhoneNumber(raw string) (string, error) {
	digits := stripNonDigits(raw)

	normalized := digits
	switch {
	case strings.HasPrefix(digits, kenyaCountryCode):
	case strings.HasPrefix(digits, "0"):
		normalized = kenyaCountryCode + digits[1:]
	case len(digits) == 9:
		normalized = kenyaCountryCode + digits
	}

	if len(normalized) != msisdnLength || !strings.HasPrefix(normalized, kenyaCountryCode) {
		return "", errors.NewValidationError("phone_number", "must be a Kenyan mobile number like 0712345678 or 254712345678")
	}
	return normalized, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhoneNumber hides the middle digits of a normalized number for logs and audit records.
func MaskPhoneNumber(msisdn string) string {
	if len(msisdn) != msisdnLength {
		return strings.Repeat("*", len(msisdn))
	}
	return msisdn[:4] + "*****" + msisdn[9:]
}
