package compliance

import "strings"

// NormalizePhone converts a US or international number to E.164. Ten-digit
// numbers are assumed to be NANP.
func NormalizePhone(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	digits := digitsOnly(value)
	switch {
	case len(digits) == 10:
		return "+1" + digits, true
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, true
	case strings.HasPrefix(value, "+") && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits, true
	}
	return "", false
}
