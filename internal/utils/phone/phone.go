package phone

import "strings"

// Normalize converts a subscriber phone number to the international
// format the payment gateway expects: a leading "0" is replaced with the
// country code, a leading "+" is stripped.
func Normalize(number, countryCode string) string {
	number = strings.TrimSpace(number)
	number = strings.ReplaceAll(number, " ", "")

	switch {
	case strings.HasPrefix(number, "0"):
		return countryCode + number[1:]
	case strings.HasPrefix(number, "+"):
		return number[1:]
	default:
		return number
	}
}

// Valid reports whether the number contains only digits (after an
// optional leading "+") and is plausibly long enough to dial.
func Valid(number string) bool {
	number = strings.TrimSpace(number)
	number = strings.TrimPrefix(number, "+")

	if len(number) < 9 {
		return false
	}
	for _, ch := range number {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
