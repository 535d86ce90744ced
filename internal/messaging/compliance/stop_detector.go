package compliance

import (
	"regexp"
	"strings"
)

// Keyword is a carrier-level SMS control keyword.
type Keyword string

const (
	KeywordNone  Keyword = ""
	KeywordStop  Keyword = "stop"
	KeywordStart Keyword = "start"
	KeywordHelp  Keyword = "help"
)

// Detector identifies STOP/START/HELP keywords in inbound messages. The
// keyword must lead the message and may only be followed by filler such as
// "now" or "texting me", so "don't stop sending listings" and "stop texting
// me and email me instead" are not a STOP.
type Detector struct {
	stopRegex  *regexp.Regexp
	startRegex *regexp.Regexp
	helpRegex  *regexp.Regexp
}

func NewDetector() *Detector {
	return &Detector{
		stopRegex:  regexp.MustCompile(`(?i)^(?:please\s+)?(stop|stopall|unsubscribe|cancel|end|quit|optout|opt\s+out)(?:\s+(?:all|now|please|me|it|texting|messaging|sending|messages|texts))*\s*[.!]*$`),
		startRegex: regexp.MustCompile(`(?i)^(start|unstop|resubscribe|subscribe)\s*[.!]?$`),
		helpRegex:  regexp.MustCompile(`(?i)^(?:please\s+)?(help|info)\s*[.!?]?$`),
	}
}

// Classify returns the keyword carried by body, if any.
func (d *Detector) Classify(body string) Keyword {
	switch {
	case d.IsStop(body):
		return KeywordStop
	case d.IsStart(body):
		return KeywordStart
	case d.IsHelp(body):
		return KeywordHelp
	}
	return KeywordNone
}

func (d *Detector) IsStop(body string) bool {
	if d == nil || d.stopRegex == nil {
		return false
	}
	return d.stopRegex.MatchString(strings.TrimSpace(body))
}

func (d *Detector) IsStart(body string) bool {
	if d == nil || d.startRegex == nil {
		return false
	}
	return d.startRegex.MatchString(strings.TrimSpace(body))
}

// IsHelp matches a bare HELP/INFO so "help me find a condo" stays a
// normal conversational message.
func (d *Detector) IsHelp(body string) bool {
	if d == nil || d.helpRegex == nil {
		return false
	}
	return d.helpRegex.MatchString(strings.TrimSpace(body))
}
