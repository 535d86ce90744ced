package llm

import "strings"

// ExtractJSONObject returns the first brace-balanced {...} block in text.
// Models often wrap JSON in prose or code fences, so callers decode this
// substring and treat a decode failure as "no structured answer".
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	// Unbalanced: hand back the greedy span so the caller's decoder reports the failure.
	end := strings.LastIndex(text, "}")
	if end > start {
		return text[start : end+1], true
	}
	return "", false
}
