package compliance

import (
	"regexp"
	"strings"
)

var (
	panCandidateRE = regexp.MustCompile(`(?:\d[ -]?){13,19}`)
	ssnRE          = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	accountRE      = regexp.MustCompile(`(?i)\b(account|acct|routing)(\s*(?:number|no\.?|#))?\s*:?\s*\d{6,17}\b`)
)

// Redact masks payment card numbers, SSNs and bank account numbers that
// leads sometimes paste into a text thread. The result is safe to log and
// to store in the audit trail.
func Redact(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return text, false
	}
	out, redacted := redactCards(text)
	if ssnRE.MatchString(out) {
		out = ssnRE.ReplaceAllString(out, "[REDACTED_SSN]")
		redacted = true
	}
	if accountRE.MatchString(out) {
		out = accountRE.ReplaceAllStringFunc(out, func(m string) string {
			label := accountRE.FindStringSubmatch(m)[1]
			return label + " [REDACTED_ACCOUNT]"
		})
		redacted = true
	}
	return out, redacted
}

func redactCards(text string) (string, bool) {
	matches := panCandidateRE.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, false
	}

	var out strings.Builder
	out.Grow(len(text))
	last := 0
	redacted := false
	for _, m := range matches {
		start, end := m[0], m[1]
		for end > start && (text[end-1] == ' ' || text[end-1] == '-') {
			end--
		}
		digits := digitsOnly(text[start:end])
		if len(digits) < 13 || len(digits) > 19 || !luhnValid(digits) {
			continue
		}
		out.WriteString(text[last:start])
		out.WriteString("[REDACTED_CARD_")
		out.WriteString(digits[len(digits)-4:])
		out.WriteString("]")
		last = end
		redacted = true
	}
	if !redacted {
		return text, false
	}
	out.WriteString(text[last:])
	return out.String(), true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if alt {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alt = !alt
	}
	return sum%10 == 0
}
