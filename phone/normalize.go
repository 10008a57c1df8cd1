// Package phone normalizes Russian phone numbers into the display form
// +7 (XXX) XXX-XX-XX.
package phone

import (
	"fmt"
	"strings"
)

// MinDigits is the shortest digit run accepted as a phone number.
const MinDigits = 10

// Normalize renders raw as +7 (XXX) XXX-XX-XX when it holds an 11-digit
// number with a 7 or 8 country prefix, as +<digits> for any other digit
// string, and returns raw unchanged when it holds no digits. Normalize is
// idempotent.
func Normalize(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return raw
	}

	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}

	if len(digits) == 11 && digits[0] == '7' {
		return fmt.Sprintf("+7 (%s) %s-%s-%s", digits[1:4], digits[4:7], digits[7:9], digits[9:11])
	}

	return "+" + digits
}

// Clean keeps only digits and '+'.
func Clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Digits keeps only ASCII digits.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Plausible reports whether raw carries enough digits to be a phone number.
func Plausible(raw string) bool {
	return len(Digits(raw)) >= MinDigits
}
