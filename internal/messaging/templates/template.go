package templates

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Category groups templates by conversation phase.
type Category string

const (
	CategoryWelcome       Category = "welcome"
	CategoryQualification Category = "qualification"
	CategoryObjection     Category = "objection"
	CategoryScheduling    Category = "scheduling"
	CategoryNurture       Category = "nurture"
	CategoryHandoff       Category = "handoff"
	CategoryFollowUp      Category = "follow_up"
	CategoryOptOut        Category = "opt_out"
	CategoryChannel       Category = "channel"
)

// DefaultMaxChars keeps a rendered message inside two SMS segments.
const DefaultMaxChars = 320

// MessageTemplate is an immutable catalog entry with alternate wordings.
type MessageTemplate struct {
	ID        string
	Category  Category
	Name      string
	Variants  []string
	Variables []string
	// Tone hints the temperature the template suits: "warm", "neutral" or "direct".
	Tone     string
	MaxChars int
}

var (
	conditionalRE = regexp.MustCompile(`\{\?(\w+):((?:[^{}]|\{\w+\})*)\}`)
	placeholderRE = regexp.MustCompile(`\{(\w+)\}`)
	spacesRE      = regexp.MustCompile(`[ \t]{2,}`)
	pricePrinter  = message.NewPrinter(language.English)
)

// Render fills the variant at variantIndex; a negative index picks one at
// random. Unknown placeholders are left in place.
func (t *MessageTemplate) Render(vars map[string]any, variantIndex int) string {
	if len(t.Variants) == 0 {
		return ""
	}
	idx := variantIndex
	if idx < 0 {
		idx = rand.IntN(len(t.Variants))
	}
	idx %= len(t.Variants)
	return t.renderText(t.Variants[idx], vars)
}

func (t *MessageTemplate) renderText(text string, vars map[string]any) string {
	out := conditionalRE.ReplaceAllStringFunc(text, func(block string) string {
		m := conditionalRE.FindStringSubmatch(block)
		if truthy(vars[m[1]]) {
			return m[2]
		}
		return ""
	})

	out = placeholderRE.ReplaceAllStringFunc(out, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := vars[name]
		if name == "first_name" && (!ok || strings.TrimSpace(stringify(v)) == "") {
			return "there"
		}
		if !ok {
			return ph
		}
		if strings.HasSuffix(name, "_price") {
			if p, ok := formatPrice(v); ok {
				return p
			}
		}
		return stringify(v)
	})

	out = strings.TrimSpace(spacesRE.ReplaceAllString(out, " "))
	out = strings.ReplaceAll(out, " ,", ",")
	out = strings.ReplaceAll(out, " .", ".")

	limit := t.MaxChars
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	if r := []rune(out); len(r) > limit {
		if limit <= 3 {
			return string(r[:limit])
		}
		out = strings.TrimSpace(string(r[:limit-3])) + "..."
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case interface{ String() string }:
		return x.String()
	}
	return fmt.Sprint(v)
}

// formatPrice renders numeric values as "$12,345".
func formatPrice(v any) (string, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float32:
		n = int64(x + 0.5)
	case float64:
		n = int64(x + 0.5)
	case string:
		clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(x)
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return "", false
		}
		n = int64(f + 0.5)
	default:
		return "", false
	}
	return pricePrinter.Sprintf("$%d", n), true
}

// truthy mirrors loose truthiness: zero values and empty collections are false.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.TrimSpace(x) != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return !rv.IsZero()
}
