package llm

import (
	"regexp"
	"strings"
)

// Quality grades a generated reply; only usable grades are sent to a lead.
type Quality string

const (
	QualityExcellent  Quality = "EXCELLENT"
	QualityGood       Quality = "GOOD"
	QualityAcceptable Quality = "ACCEPTABLE"
	QualityPoor       Quality = "POOR"
	QualityFailed     Quality = "FAILED"
)

// Usable reports whether the reply may be sent as-is.
func (q Quality) Usable() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityAcceptable:
		return true
	default:
		return false
	}
}

const (
	smsSoftLimit = 320
	smsHardLimit = 480
)

var (
	aiSelfReferenceRE = regexp.MustCompile(`(?i)\b(as an ai|language model|i am an ai|i'm an ai|artificial intelligence)\b`)
	placeholderRE     = regexp.MustCompile(`\{[a-z_]+\}|\[(insert|your|agent|name)[^\]]*\]`)
	robotPhrasesRE    = regexp.MustCompile(`(?i)\b(i apologize for any confusion|i understand your concern|please be advised|kindly note)\b`)
)

// AssessQuality grades a reply with fixed rules: empty replies fail, leaked
// placeholders, AI self-references and over-long SMS are poor, and
// question-bearing replies while collecting information are excellent.
func AssessQuality(text, state, channel string) (Quality, []string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return QualityFailed, []string{"empty response"}
	}

	var issues []string
	if aiSelfReferenceRE.MatchString(trimmed) {
		issues = append(issues, "mentions being an AI")
	}
	if placeholderRE.MatchString(trimmed) {
		issues = append(issues, "unrendered placeholder")
	}
	isSMS := strings.EqualFold(channel, "sms") || channel == ""
	if isSMS && len(trimmed) > smsHardLimit {
		issues = append(issues, "too long for sms")
	}
	if len(issues) > 0 {
		return QualityPoor, issues
	}

	if robotPhrasesRE.MatchString(trimmed) {
		return QualityAcceptable, []string{"canned phrasing"}
	}
	if isSMS && len(trimmed) > smsSoftLimit {
		return QualityAcceptable, []string{"long for sms"}
	}
	if len(trimmed) < 8 {
		return QualityAcceptable, []string{"very short"}
	}

	switch strings.ToUpper(state) {
	case "INITIAL", "QUALIFYING", "SCHEDULING":
		if strings.Contains(trimmed, "?") {
			return QualityExcellent, nil
		}
	}
	return QualityGood, nil
}
