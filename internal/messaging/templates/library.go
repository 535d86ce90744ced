package templates

import "sort"

// Template IDs referenced by the engine's convenience helpers.
const (
	WelcomePropertyInquiry = "welcome_property_inquiry"
	WelcomeReferral        = "welcome_referral"
	WelcomeGeneric         = "welcome_generic"
	QualificationFallback  = "qualification_fallback"
	ObjectionFallback      = "objection_fallback"
	SchedulingProperty     = "scheduling_property"
	SchedulingGeneric      = "scheduling_generic"
	NurtureCheckIn         = "nurture_checkin"
	HandoffGeneric         = "handoff_generic"
	HandoffEscalation      = "handoff_escalation"
	HandoffError           = "handoff_error"
	FollowUpGeneric        = "follow_up_generic"
	FollowUpDeferred       = "follow_up_deferred"
	OptOutConfirmationID   = "opt_out_confirmation"
	ChannelAckEmail        = "channel_ack_email"
	ChannelAckSMS          = "channel_ack_sms"
	ChannelAckCall         = "channel_ack_call"
	ChannelAckReduction    = "channel_ack_reduction"
)

// OptOutText is the fixed unsubscribe confirmation.
const OptOutText = "You've been unsubscribed. Thanks, and best of luck with your search!"

// Library is an immutable template catalog, built once and shared.
type Library struct {
	templates map[string]MessageTemplate
}

func NewLibrary(templates []MessageTemplate) *Library {
	l := &Library{templates: make(map[string]MessageTemplate, len(templates))}
	for _, t := range templates {
		t.Variants = append([]string(nil), t.Variants...)
		t.Variables = append([]string(nil), t.Variables...)
		l.templates[t.ID] = t
	}
	return l
}

// Get returns a copy of the template with the given ID.
func (l *Library) Get(id string) (*MessageTemplate, bool) {
	t, ok := l.templates[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

// ByCategory lists templates in a category ordered by ID.
func (l *Library) ByCategory(c Category) []MessageTemplate {
	var out []MessageTemplate
	for _, t := range l.templates {
		if t.Category == c {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Library) Len() int { return len(l.templates) }

var defaultLibrary = NewLibrary([]MessageTemplate{
	{
		ID:       WelcomePropertyInquiry,
		Category: CategoryWelcome,
		Name:     "Welcome (property inquiry)",
		Variants: []string{
			"Hi {first_name}! This is {agent_name}. Thanks for asking about {property_address}{?list_price: (listed at {list_price})}. Are you hoping to see it in person?",
			"Hey {first_name}, {agent_name} here. I saw you were checking out {property_address}. Want me to send more details or set up a showing?",
		},
		Variables: []string{"first_name", "agent_name", "property_address", "list_price"},
		Tone:      "warm",
	},
	{
		ID:       WelcomeReferral,
		Category: CategoryWelcome,
		Name:     "Welcome (referral)",
		Variants: []string{
			"Hi {first_name}! This is {agent_name}{?brokerage_name: with {brokerage_name}}. {referral_source} connected us to help with your home search. What are you looking for?",
			"Hey {first_name}, {agent_name} here. {referral_source} mentioned you're starting a home search. Happy to help! What's your timeline looking like?",
		},
		Variables: []string{"first_name", "agent_name", "brokerage_name", "referral_source"},
		Tone:      "warm",
	},
	{
		ID:       WelcomeGeneric,
		Category: CategoryWelcome,
		Name:     "Welcome (generic)",
		Variants: []string{
			"Hi {first_name}! This is {agent_name}{?brokerage_name: with {brokerage_name}}. Thanks for reaching out about buying or selling. What can I help you with?",
			"Hey {first_name}, {agent_name} here{?brokerage_name: from {brokerage_name}}. I'd love to help with your home search. Are you looking to buy, sell, or both?",
		},
		Variables: []string{"first_name", "agent_name", "brokerage_name"},
		Tone:      "warm",
	},
	{
		ID:       QualificationFallback,
		Category: CategoryQualification,
		Name:     "Qualification fallback",
		Variants: []string{
			"Thanks {first_name}! To point you to the right homes, when are you hoping to make a move?",
			"Got it. Quick question so I can help: what areas are you most interested in?",
		},
		Variables: []string{"first_name"},
		Tone:      "neutral",
	},
	{
		ID:       ObjectionFallback,
		Category: CategoryObjection,
		Name:     "Objection fallback",
		Variants: []string{
			"Totally understand, {first_name}. No pressure at all. I'm here whenever you're ready.",
			"That makes sense. If anything changes, just text me and I'll help however I can.",
		},
		Variables: []string{"first_name"},
		Tone:      "warm",
	},
	{
		ID:       SchedulingProperty,
		Category: CategoryScheduling,
		Name:     "Scheduling (property)",
		Variants: []string{
			"Great, {first_name}! I can get you into {property_address}. What day and time work best for a showing?",
			"Let's get you in to see {property_address}. Are weekdays or weekends better for you?",
		},
		Variables: []string{"first_name", "property_address"},
		Tone:      "direct",
	},
	{
		ID:       SchedulingGeneric,
		Category: CategoryScheduling,
		Name:     "Scheduling (generic)",
		Variants: []string{
			"Sounds like you're ready to start touring, {first_name}! What day and time work best for you?",
			"Let's set up a time to chat about your search. Would tomorrow or later this week work better?",
		},
		Variables: []string{"first_name"},
		Tone:      "direct",
	},
	{
		ID:       NurtureCheckIn,
		Category: CategoryNurture,
		Name:     "Nurture check-in",
		Variants: []string{
			"Hi {first_name}, just checking in. Still thinking about a move{?location: in {location}}? I'm happy to send a few listings.",
			"Hey {first_name}! New homes have been popping up{?location: around {location}}. Want me to send you a few?",
		},
		Variables: []string{"first_name", "location"},
		Tone:      "warm",
	},
	{
		ID:       HandoffGeneric,
		Category: CategoryHandoff,
		Name:     "Handoff",
		Variants: []string{
			"Thanks {first_name}! I'm looping in {agent_name} to help you personally. Expect a message shortly.",
			"Great questions, {first_name}. {agent_name} will reach out directly to take it from here.",
		},
		Variables: []string{"first_name", "agent_name"},
		Tone:      "neutral",
	},
	{
		ID:       HandoffEscalation,
		Category: CategoryHandoff,
		Name:     "Handoff (escalation)",
		Variants: []string{
			"I hear you, {first_name}, and I'm sorry for the trouble. {agent_name} will reach out to you directly.",
			"Understood. I'm getting {agent_name} involved right away so you can talk with a person.",
		},
		Variables: []string{"first_name", "agent_name"},
		Tone:      "neutral",
	},
	{
		ID:       HandoffError,
		Category: CategoryHandoff,
		Name:     "Handoff (error)",
		Variants: []string{
			"Thanks for your patience, {first_name}! Let me connect you with someone on our team who can help.",
		},
		Variables: []string{"first_name"},
		Tone:      "neutral",
	},
	{
		ID:       FollowUpGeneric,
		Category: CategoryFollowUp,
		Name:     "Follow-up",
		Variants: []string{
			"Hi {first_name}, just following up. Anything I can help with in your home search?",
			"Hey {first_name}! Checking back in. Let me know if you have any questions.",
		},
		Variables: []string{"first_name"},
		Tone:      "warm",
	},
	{
		ID:       FollowUpDeferred,
		Category: CategoryFollowUp,
		Name:     "Deferred follow-up acknowledgment",
		Variants: []string{
			"No problem, {first_name}! I'll reach back out {follow_up_phrase}. Enjoy the break!",
			"Sounds good. I'll check in {follow_up_phrase}. Text me anytime before then.",
		},
		Variables: []string{"first_name", "follow_up_phrase"},
		Tone:      "warm",
	},
	{
		ID:       OptOutConfirmationID,
		Category: CategoryOptOut,
		Name:     "Opt-out confirmation",
		Variants: []string{OptOutText},
		Tone:     "neutral",
	},
	{
		ID:        ChannelAckEmail,
		Category:  CategoryChannel,
		Name:      "Channel acknowledgment (email)",
		Variants:  []string{"Got it, I'll switch to email{?email: at {email}} from here."},
		Variables: []string{"email"},
		Tone:      "neutral",
	},
	{
		ID:       ChannelAckSMS,
		Category: CategoryChannel,
		Name:     "Channel acknowledgment (sms)",
		Variants: []string{"Sounds good, I'll keep things over text."},
		Tone:     "neutral",
	},
	{
		ID:        ChannelAckCall,
		Category:  CategoryChannel,
		Name:      "Channel acknowledgment (call)",
		Variants:  []string{"Happy to chat by phone. {agent_name} will give you a call."},
		Variables: []string{"agent_name"},
		Tone:      "neutral",
	},
	{
		ID:        ChannelAckReduction,
		Category:  CategoryChannel,
		Name:      "Channel acknowledgment (fewer messages)",
		Variants:  []string{"Understood, I'll reach out less often{?frequency: ({frequency})}."},
		Variables: []string{"frequency"},
		Tone:      "neutral",
	},
})

// DefaultLibrary returns the built-in catalog.
func DefaultLibrary() *Library { return defaultLibrary }
