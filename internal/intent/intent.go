package intent

import "strings"

// Intent is a named conversation intent. The set is closed; see AllIntents.
type Intent string

const (
	Greeting Intent = "greeting"
	Thanks   Intent = "thanks"
	Yes      Intent = "yes"
	No       Intent = "no"
	Question Intent = "question"
	Unknown  Intent = "unknown"

	TimelineImmediate Intent = "timeline_immediate"
	TimelineShort     Intent = "timeline_short"
	TimelineMedium    Intent = "timeline_medium"
	TimelineLong      Intent = "timeline_long"
	TimelineUnknown   Intent = "timeline_unknown"

	BudgetSpecific       Intent = "budget_specific"
	BudgetRange          Intent = "budget_range"
	BudgetPreapproved    Intent = "budget_preapproved"
	BudgetNotPreapproved Intent = "budget_not_preapproved"
	BudgetCash           Intent = "budget_cash"

	LocationPreference Intent = "location_preference"
	PropertyType       Intent = "property_type"

	MotivationJob       Intent = "motivation_job"
	MotivationFamily    Intent = "motivation_family"
	MotivationDownsize  Intent = "motivation_downsize"
	MotivationUpsize    Intent = "motivation_upsize"
	MotivationInvest    Intent = "motivation_investment"
	MotivationFirstHome Intent = "motivation_first_home"

	PositiveInterest Intent = "positive_interest"
	NegativeInterest Intent = "negative_interest"
	JustBrowsing     Intent = "just_browsing"

	ObjectionOtherAgent Intent = "objection_other_agent"
	ObjectionNotReady   Intent = "objection_not_ready"
	ObjectionPrice      Intent = "objection_price"
	ObjectionTiming     Intent = "objection_timing"

	AppointmentInterest   Intent = "appointment_interest"
	AppointmentConfirm    Intent = "appointment_confirm"
	AppointmentReschedule Intent = "appointment_reschedule"
	AppointmentCancel     Intent = "appointment_cancel"
	ShowingRequest        Intent = "showing_request"
	TimeSelection         Intent = "time_selection"
	DeferredFollowup      Intent = "deferred_followup"

	ChannelPreferSMS   Intent = "channel_prefer_sms"
	ChannelPreferEmail Intent = "channel_prefer_email"
	ChannelPreferCall  Intent = "channel_prefer_call"
	ChannelReduction   Intent = "channel_reduction"

	OptOut            Intent = "opt_out"
	EscalationRequest Intent = "escalation_request"
	Frustration       Intent = "frustration"
	Profanity         Intent = "profanity"
	Decline           Intent = "decline"

	PropertyQuestion Intent = "property_question"
	SellingInterest  Intent = "selling_interest"
)

var allIntents = []Intent{
	Greeting, Thanks, Yes, No, Question, Unknown,
	TimelineImmediate, TimelineShort, TimelineMedium, TimelineLong, TimelineUnknown,
	BudgetSpecific, BudgetRange, BudgetPreapproved, BudgetNotPreapproved, BudgetCash,
	LocationPreference, PropertyType,
	MotivationJob, MotivationFamily, MotivationDownsize, MotivationUpsize, MotivationInvest, MotivationFirstHome,
	PositiveInterest, NegativeInterest, JustBrowsing,
	ObjectionOtherAgent, ObjectionNotReady, ObjectionPrice, ObjectionTiming,
	AppointmentInterest, AppointmentConfirm, AppointmentReschedule, AppointmentCancel, ShowingRequest, TimeSelection, DeferredFollowup,
	ChannelPreferSMS, ChannelPreferEmail, ChannelPreferCall, ChannelReduction,
	OptOut, EscalationRequest, Frustration, Profanity, Decline,
	PropertyQuestion, SellingInterest,
}

var intentIndex = func() map[Intent]struct{} {
	m := make(map[Intent]struct{}, len(allIntents))
	for _, i := range allIntents {
		m[i] = struct{}{}
	}
	return m
}()

// AllIntents returns a copy of the closed intent set in canonical order.
func AllIntents() []Intent {
	out := make([]Intent, len(allIntents))
	copy(out, allIntents)
	return out
}

// Parse maps a name like "OPT_OUT" or "opt_out" onto an Intent.
func Parse(name string) (Intent, bool) {
	i := Intent(strings.ToLower(strings.TrimSpace(name)))
	_, ok := intentIndex[i]
	return i, ok
}

func (i Intent) String() string { return string(i) }

// IsHighPriority reports whether the intent wins confidence ties.
func (i Intent) IsHighPriority() bool {
	switch i {
	case OptOut, EscalationRequest, Frustration, Profanity:
		return true
	}
	return false
}

// IsObjection reports whether the intent is routed to the objection handler.
func (i Intent) IsObjection() bool {
	switch i {
	case ObjectionOtherAgent, ObjectionNotReady, JustBrowsing, ObjectionPrice, ObjectionTiming, NegativeInterest:
		return true
	}
	return false
}

// IsChannelIntent reports channel preference or reduction intents.
func (i Intent) IsChannelIntent() bool {
	switch i {
	case ChannelPreferSMS, ChannelPreferEmail, ChannelPreferCall, ChannelReduction:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func parseSentiment(s string) (Sentiment, bool) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNegative:
		return SentimentNegative, true
	case SentimentNeutral:
		return SentimentNeutral, true
	}
	return "", false
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Entity types produced by the extractor.
const (
	EntityBudget            = "budget"
	EntityBudgetRange       = "budget_range"
	EntityLocation          = "location"
	EntityPropertyType      = "property_type"
	EntityTimeSlot          = "time_slot"
	EntityChannelPreference = "channel_preference"
	EntityChannelReduction  = "channel_reduction"
	EntityDeferredDate      = "deferred_date"
	EntityBedrooms          = "bedrooms"
)

// ExtractedEntity is one structured value pulled from a message.
type ExtractedEntity struct {
	Type       string  `json:"entity_type"`
	Value      any     `json:"value"`
	RawText    string  `json:"raw_text"`
	Confidence float64 `json:"confidence"`
}

// Range is the value of a budget_range entity.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// TimeSlot is the value of a time_slot entity. Option is set when the lead
// picks a numbered slot instead of naming a day or time.
type TimeSlot struct {
	Day    string `json:"day,omitempty"`
	Time   string `json:"time,omitempty"`
	Option int    `json:"option,omitempty"`
}

// DeferredDate is the value of a deferred_date entity.
type DeferredDate struct {
	Date   string `json:"date"`
	Days   int    `json:"days"`
	Phrase string `json:"phrase"`
}

// Scored pairs an intent with its confidence.
type Scored struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// DetectedIntent is the read-only classification of one inbound message.
type DetectedIntent struct {
	PrimaryIntent     Intent            `json:"primary_intent"`
	Confidence        float64           `json:"confidence"`
	SecondaryIntents  []Scored          `json:"secondary_intents"`
	ExtractedEntities []ExtractedEntity `json:"extracted_entities"`
	Sentiment         Sentiment         `json:"sentiment"`
	Urgency           Urgency           `json:"urgency"`
	RawMessage        string            `json:"raw_message"`
	UsedLLM           bool              `json:"used_llm"`
	Reasoning         string            `json:"reasoning,omitempty"`
}

// Has reports whether i is the primary or any secondary intent.
func (d DetectedIntent) Has(i Intent) bool {
	if d.PrimaryIntent == i {
		return true
	}
	for _, s := range d.SecondaryIntents {
		if s.Intent == i {
			return true
		}
	}
	return false
}

// Entity returns the first entity of the given type.
func (d DetectedIntent) Entity(entityType string) (ExtractedEntity, bool) {
	for _, e := range d.ExtractedEntities {
		if e.Type == entityType {
			return e, true
		}
	}
	return ExtractedEntity{}, false
}

var negativeIntents = map[Intent]bool{
	Frustration: true, Profanity: true, NegativeInterest: true,
	ObjectionOtherAgent: true, ObjectionNotReady: true, ObjectionPrice: true, ObjectionTiming: true,
	Decline: true, No: true,
}

var positiveIntents = map[Intent]bool{
	PositiveInterest: true, AppointmentInterest: true, ShowingRequest: true,
	Yes: true, Thanks: true, TimelineImmediate: true, BudgetPreapproved: true,
}

func sentimentFor(i Intent) Sentiment {
	switch {
	case negativeIntents[i]:
		return SentimentNegative
	case positiveIntents[i]:
		return SentimentPositive
	default:
		return SentimentNeutral
	}
}

func urgencyFor(i Intent) Urgency {
	switch i {
	case OptOut, EscalationRequest, Frustration:
		return UrgencyUrgent
	case TimelineImmediate, AppointmentInterest, ShowingRequest:
		return UrgencyHigh
	case TimelineLong, TimelineUnknown, JustBrowsing:
		return UrgencyLow
	default:
		return UrgencyNormal
	}
}
