package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MinBudget and MaxBudget bound any extracted purchase budget.
	MinBudget = 50_000
	MaxBudget = 50_000_000
)

// EntityExtractor runs a fixed set of independent extractors. Each extractor
// yields at most one entity; within an extractor the first matching pattern
// wins.
type EntityExtractor struct {
	now func() time.Time
}

// ExtractorOption configures an EntityExtractor.
type ExtractorOption func(*EntityExtractor)

// WithClock overrides the time source used for deferred dates.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *EntityExtractor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEntityExtractor(opts ...ExtractorOption) *EntityExtractor {
	e := &EntityExtractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractAll collects every extractor's result for text.
func (e *EntityExtractor) ExtractAll(text string) []ExtractedEntity {
	extractors := []func(string) (ExtractedEntity, bool){
		extractBudget,
		extractBudgetRange,
		extractLocation,
		extractPropertyType,
		extractTimeSlot,
		extractChannelPreference,
		extractChannelReduction,
		e.extractDeferredDate,
		extractBedrooms,
	}
	var out []ExtractedEntity
	for _, fn := range extractors {
		if ent, ok := fn(text); ok {
			out = append(out, ent)
		}
	}
	return out
}

const amountExpr = `(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)`
const suffixExpr = `(k|m|mil|million)`

type amountPattern struct {
	regex      *regexp.Regexp
	confidence float64
}

var budgetPatterns = []amountPattern{
	{regexp.MustCompile(`(?i)\$\s?` + amountExpr + `\s*` + suffixExpr + `?\b`), 0.9},
	{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s?` + suffixExpr + `\b`), 0.85},
	{regexp.MustCompile(`\b(\d{6,7}|\d{3},\d{3}|\d,\d{3},\d{3})\b()`), 0.7},
}

func parseAmount(num, suffix string) (int, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		v *= 1_000
	case "m", "mil", "million":
		v *= 1_000_000
	}
	return int(v + 0.5), true
}

func inBudgetBounds(v int) bool {
	return v >= MinBudget && v <= MaxBudget
}

func extractBudget(text string) (ExtractedEntity, bool) {
	for _, pat := range budgetPatterns {
		matches := pat.regex.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			v, ok := parseAmount(m[1], m[2])
			if !ok || !inBudgetBounds(v) {
				continue
			}
			return ExtractedEntity{Type: EntityBudget, Value: v, RawText: strings.TrimSpace(m[0]), Confidence: pat.confidence}, true
		}
		return ExtractedEntity{}, false
	}
	return ExtractedEntity{}, false
}

var budgetRangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbetween\s+\$?` + amountExpr + `\s?` + suffixExpr + `?\s+and\s+\$?` + amountExpr + `\s?` + suffixExpr + `?\b`),
	regexp.MustCompile(`(?i)\$?` + amountExpr + `\s?` + suffixExpr + `?\s*(?:-|–|to)\s*\$?` + amountExpr + `\s?` + suffixExpr + `?\b`),
}

func extractBudgetRange(text string) (ExtractedEntity, bool) {
	for _, re := range budgetRangePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if r, ok := parseRange(m[1], m[2], m[3], m[4]); ok {
				return ExtractedEntity{
					Type:       EntityBudgetRange,
					Value:      r,
					RawText:    strings.TrimSpace(m[0]),
					Confidence: 0.85,
				}, true
			}
		}
	}
	return ExtractedEntity{}, false
}

func parseRange(lowNum, lowSuffix, highNum, highSuffix string) (Range, bool) {
	high, ok := parseAmount(highNum, highSuffix)
	if !ok {
		return Range{}, false
	}
	// "500-600k" shares the suffix of the upper bound.
	if lowSuffix == "" && highSuffix != "" && !strings.Contains(lowNum, ",") {
		lowSuffix = highSuffix
	}
	low, ok := parseAmount(lowNum, lowSuffix)
	if !ok || low <= 0 || low >= high || !inBudgetBounds(high) {
		return Range{}, false
	}
	return Range{Low: low, High: high}, true
}

var (
	locationAreaRE  = regexp.MustCompile(`\b[Tt]he\s+([A-Z][a-zA-Z'.-]+(?:\s+[A-Z][a-zA-Z'.-]+)?)\s+area\b`)
	locationPrepRE  = regexp.MustCompile(`\b(?:[Ii]n|[Nn]ear|[Aa]round|[Cc]lose to|[Bb]y)\s+([A-Z][a-zA-Z'.-]+(?:\s+[A-Z][a-zA-Z'.-]+){0,2})`)
	locationZipRE   = regexp.MustCompile(`(?i)\bzip(?:\s*code)?\s*(\d{5})\b`)
	locationStopSet = map[string]bool{
		"i": true, "the": true, "a": true, "my": true, "our": true,
		"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
		"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
		"spring": true, "summer": true, "fall": true, "winter": true,
	}
)

func extractLocation(text string) (ExtractedEntity, bool) {
	if m := locationAreaRE.FindStringSubmatch(text); m != nil && !locationStopSet[strings.ToLower(firstWord(m[1]))] {
		return ExtractedEntity{Type: EntityLocation, Value: cleanPlace(m[1]), RawText: m[0], Confidence: 0.85}, true
	}
	for _, m := range locationPrepRE.FindAllStringSubmatch(text, -1) {
		if locationStopSet[strings.ToLower(firstWord(m[1]))] {
			continue
		}
		return ExtractedEntity{Type: EntityLocation, Value: cleanPlace(m[1]), RawText: m[0], Confidence: 0.75}, true
	}
	if m := locationZipRE.FindStringSubmatch(text); m != nil {
		return ExtractedEntity{Type: EntityLocation, Value: m[1], RawText: m[0], Confidence: 0.9}, true
	}
	return ExtractedEntity{}, false
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func cleanPlace(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".'-")
}

var propertyTypePatterns = []struct {
	regex *regexp.Regexp
	value string
}{
	{regexp.MustCompile(`(?i)\b(condos?|condominiums?|lofts?)\b`), "condo"},
	{regexp.MustCompile(`(?i)\b(townhouses?|townhomes?|row\s?homes?)\b`), "townhouse"},
	{regexp.MustCompile(`(?i)\b(duplex|triplex|fourplex|multi[\s-]family)\b`), "multi_family"},
	{regexp.MustCompile(`(?i)\b(single[\s-]family|ranch|bungalow|detached house)\b`), "single_family"},
	{regexp.MustCompile(`(?i)\b(mobile home|manufactured home)\b`), "mobile_home"},
	{regexp.MustCompile(`(?i)\b(vacant land|acreage|buildable lot|land to build)\b`), "land"},
	{regexp.MustCompile(`(?i)\b(cabin|vacation home|second home)\b`), "vacation_home"},
}

func extractPropertyType(text string) (ExtractedEntity, bool) {
	for _, pt := range propertyTypePatterns {
		if m := pt.regex.FindString(text); m != "" {
			return ExtractedEntity{Type: EntityPropertyType, Value: pt.value, RawText: m, Confidence: 0.8}, true
		}
	}
	return ExtractedEntity{}, false
}

var (
	slotDayRE    = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|tonight)\b`)
	slotTimeRE   = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*(?:am|pm)|noon)\b`)
	slotOptionRE = regexp.MustCompile(`(?i)\b(?:option|slot|number)\s*#?\s*([1-9])\b`)
)

func extractTimeSlot(text string) (ExtractedEntity, bool) {
	if m := slotOptionRE.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return ExtractedEntity{Type: EntityTimeSlot, Value: TimeSlot{Option: n}, RawText: m[0], Confidence: 0.9}, true
	}
	day := slotDayRE.FindString(text)
	tm := slotTimeRE.FindString(text)
	if day == "" && tm == "" {
		return ExtractedEntity{}, false
	}
	slot := TimeSlot{
		Day:  strings.ToLower(day),
		Time: strings.ToLower(strings.ReplaceAll(tm, " ", "")),
	}
	confidence := 0.6
	raw := strings.TrimSpace(day + " " + tm)
	if day != "" && tm != "" {
		confidence = 0.85
	}
	return ExtractedEntity{Type: EntityTimeSlot, Value: slot, RawText: raw, Confidence: confidence}, true
}

var channelPreferencePatterns = []struct {
	regex   *regexp.Regexp
	channel string
}{
	{regexp.MustCompile(`(?i)\b(e-?mail (me|is better|works better|instead|only)|prefers? (to get |an? )?e-?mails?|rather (get |have )?(an? )?e-?mails?|send (it|that|them|me) (by|via|through|to my) e-?mail)\b`), "email"},
	{regexp.MustCompile(`(?i)\b(text (is better|works better|instead|only)|prefers? (to get |a )?(texts?|text messages?|sms)|rather (get |have )?(a )?(texts?|text messages?))\b`), "sms"},
	{regexp.MustCompile(`(?i)\b(give me a call|prefers? (a )?(phone )?calls?|rather (talk|speak) on the phone|call me instead)\b`), "call"},
}

func extractChannelPreference(text string) (ExtractedEntity, bool) {
	for _, cp := range channelPreferencePatterns {
		if m := cp.regex.FindString(text); m != "" {
			return ExtractedEntity{Type: EntityChannelPreference, Value: cp.channel, RawText: m, Confidence: 0.85}, true
		}
	}
	return ExtractedEntity{}, false
}

var channelReductionRE = regexp.MustCompile(`(?i)\b((less|fewer|not so many|too many)\s+(texts|messages|emails|calls)|(only|just)\s+(text|email|contact|message|reach out to)\s+(me\s+)?(once|when|if)|(once a (week|month)|weekly|monthly)\s+(is|would be)\s+(fine|enough|plenty|better))\b`)

func extractChannelReduction(text string) (ExtractedEntity, bool) {
	m := channelReductionRE.FindString(text)
	if m == "" {
		return ExtractedEntity{}, false
	}
	frequency := "less"
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "week"):
		frequency = "weekly"
	case strings.Contains(lower, "month"):
		frequency = "monthly"
	}
	return ExtractedEntity{Type: EntityChannelReduction, Value: frequency, RawText: m, Confidence: 0.85}, true
}

var (
	deferredInRE       = regexp.MustCompile(`(?i)\bin\s+(an?|one|two|three|four|five|six|\d+|a couple(?: of)?|couple(?: of)?|a few|few)\s+(day|week|month|year)s?\b`)
	deferredNextRE     = regexp.MustCompile(`(?i)\bnext\s+(week|month|year)\b`)
	deferredHolidaysRE = regexp.MustCompile(`(?i)\b(?:after|once)\s+the\s+(?:holidays|new\s+year)\b`)
)

var unitDays = map[string]int{"day": 1, "week": 7, "month": 30, "year": 365}

var wordCounts = map[string]int{"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6}

// deferredDays converts "<quantity> <unit>" into a fixed day count. Months are
// 30 days and years 365; this is an approximation.
func deferredDays(quantity, unit string) int {
	quantity = strings.ToLower(strings.TrimSpace(quantity))
	unit = strings.ToLower(unit)
	perUnit := unitDays[unit]
	switch {
	case strings.Contains(quantity, "couple"):
		return 2 * perUnit
	case strings.Contains(quantity, "few"):
		switch unit {
		case "week":
			return 21
		case "month":
			return 90
		default:
			return 3 * perUnit
		}
	}
	if n, ok := wordCounts[quantity]; ok {
		return n * perUnit
	}
	if n, err := strconv.Atoi(quantity); err == nil {
		return n * perUnit
	}
	return perUnit
}

func (e *EntityExtractor) extractDeferredDate(text string) (ExtractedEntity, bool) {
	now := e.now()
	build := func(days int, raw string, confidence float64) (ExtractedEntity, bool) {
		date := now.AddDate(0, 0, days)
		return ExtractedEntity{
			Type:       EntityDeferredDate,
			Value:      DeferredDate{Date: date.Format("2006-01-02"), Days: days, Phrase: strings.ToLower(raw)},
			RawText:    raw,
			Confidence: confidence,
		}, true
	}
	if m := deferredInRE.FindStringSubmatch(text); m != nil {
		return build(deferredDays(m[1], m[2]), m[0], 0.85)
	}
	if m := deferredNextRE.FindStringSubmatch(text); m != nil {
		return build(unitDays[strings.ToLower(m[1])], m[0], 0.85)
	}
	if m := deferredHolidaysRE.FindString(text); m != "" {
		// Fall/winter requests land on the first business week of January.
		if now.Month() >= time.October {
			jan := time.Date(now.Year()+1, time.January, 5, 0, 0, 0, 0, now.Location())
			days := int(jan.Sub(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())).Hours() / 24)
			return build(days, m, 0.75)
		}
		return build(30, m, 0.6)
	}
	return ExtractedEntity{}, false
}

var bedroomsRE = regexp.MustCompile(`(?i)\b(\d)\s*\+?\s*(?:bed(?:room)?s?|br|bd)\b`)

func extractBedrooms(text string) (ExtractedEntity, bool) {
	m := bedroomsRE.FindStringSubmatch(text)
	if m == nil {
		return ExtractedEntity{}, false
	}
	n, _ := strconv.Atoi(m[1])
	if n == 0 {
		return ExtractedEntity{}, false
	}
	return ExtractedEntity{Type: EntityBedrooms, Value: n, RawText: m[0], Confidence: 0.8}, true
}
