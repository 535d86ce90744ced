package agent

import (
	"strings"
	"time"

	"github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
)

// Channel is the medium a message arrived on or will leave by.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelCall  Channel = "call"
)

// ProcessingResult summarizes how a message was handled.
type ProcessingResult string

const (
	ResultSuccess           ProcessingResult = "success"
	ResultComplianceBlocked ProcessingResult = "compliance_blocked"
	ResultHandoffTriggered  ProcessingResult = "handoff_triggered"
	ResultError             ProcessingResult = "error"
	ResultSkipped           ProcessingResult = "skipped"
)

// LeadProfile is the CRM view of a lead supplied with each message.
type LeadProfile struct {
	ID                     string         `json:"id"`
	PersonID               string         `json:"person_id,omitempty"`
	UserID                 string         `json:"user_id,omitempty"`
	FirstName              string         `json:"first_name,omitempty"`
	LastName               string         `json:"last_name,omitempty"`
	Phone                  string         `json:"phone,omitempty"`
	Email                  string         `json:"email,omitempty"`
	Source                 string         `json:"source,omitempty"`
	SMSConsent             *bool          `json:"sms_consent,omitempty"`
	Score                  int            `json:"score,omitempty"`
	ObjectionCount         int            `json:"objection_count,omitempty"`
	Timeline               string         `json:"timeline,omitempty"`
	PreferredNeighborhoods []string       `json:"preferred_neighborhoods,omitempty"`
	PropertyAddress        string         `json:"property_address,omitempty"`
	ListPrice              int            `json:"list_price,omitempty"`
	ReferralSource         string         `json:"referral_source,omitempty"`
	Location               string         `json:"location,omitempty"`
	CustomFields           map[string]any `json:"custom_fields,omitempty"`
}

// context flattens the populated profile fields for the reply prompt.
func (p LeadProfile) context() map[string]any {
	m := map[string]any{}
	put := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			m[k] = v
		}
	}
	put("first_name", p.FirstName)
	put("last_name", p.LastName)
	put("source", p.Source)
	put("timeline", p.Timeline)
	put("property_address", p.PropertyAddress)
	put("referral_source", p.ReferralSource)
	put("location", p.Location)
	if p.ListPrice > 0 {
		m["list_price"] = p.ListPrice
	}
	if p.Score > 0 {
		m["score"] = p.Score
	}
	if len(p.PreferredNeighborhoods) > 0 {
		m["preferred_neighborhoods"] = strings.Join(p.PreferredNeighborhoods, ", ")
	}
	for k, v := range p.CustomFields {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

func (p LeadProfile) recipient(conversationID string, s config.AgentSettings) templates.Recipient {
	location := p.Location
	if location == "" && len(p.PreferredNeighborhoods) > 0 {
		location = p.PreferredNeighborhoods[0]
	}
	return templates.Recipient{
		LeadID:          p.ID,
		ConversationID:  conversationID,
		FirstName:       p.FirstName,
		AgentName:       s.AgentName,
		BrokerageName:   s.BrokerageName,
		PropertyAddress: p.PropertyAddress,
		ListPrice:       p.ListPrice,
		ReferralSource:  p.ReferralSource,
		Location:        location,
		Email:           p.Email,
	}
}

// MessageRequest is one inbound lead message.
type MessageRequest struct {
	Message        string            `json:"message"`
	Lead           LeadProfile       `json:"lead"`
	Channel        Channel           `json:"channel,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	History        []llm.ChatMessage `json:"history,omitempty"`
	// UseLLMIntent enables LLM verification of ambiguous intents.
	UseLLMIntent bool `json:"use_llm_intent,omitempty"`
}

func (r MessageRequest) conversationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.Lead.ID
}

// NewLeadRequest asks for the first outbound message to a fresh lead.
type NewLeadRequest struct {
	Lead           LeadProfile `json:"lead"`
	Channel        Channel     `json:"channel,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
}

// Response is the outcome of processing one message.
type Response struct {
	ResponseID   string           `json:"response_id"`
	LeadID       string           `json:"lead_id"`
	ResponseText string           `json:"response_text"`
	Channel      Channel          `json:"channel"`
	Result       ProcessingResult `json:"result"`

	DetectedIntent   intent.Intent    `json:"detected_intent,omitempty"`
	IntentConfidence float64          `json:"intent_confidence"`
	Sentiment        intent.Sentiment `json:"sentiment,omitempty"`
	UsedLLMIntent    bool             `json:"used_llm_intent"`

	ConversationState     State          `json:"conversation_state"`
	LeadScore             int            `json:"lead_score"`
	ScoreDelta            int            `json:"score_delta"`
	QualificationProgress float64        `json:"qualification_progress"`
	IsMinimallyQualified  bool           `json:"is_minimally_qualified"`
	ExtractedInfo         map[string]any `json:"extracted_info,omitempty"`

	ShouldHandoff        bool   `json:"should_handoff"`
	HandoffReason        string `json:"handoff_reason,omitempty"`
	AppointmentRequested bool   `json:"appointment_requested"`

	ChannelPreferenceChanged  bool   `json:"channel_preference_changed"`
	PreferredChannel          string `json:"preferred_channel,omitempty"`
	ChannelReductionRequested bool   `json:"channel_reduction_requested"`
	ContactFrequency          string `json:"contact_frequency,omitempty"`
	ChannelAcknowledgment     string `json:"channel_acknowledgment,omitempty"`

	ComplianceStatus string `json:"compliance_status,omitempty"`
	ComplianceReason string `json:"compliance_reason,omitempty"`

	UsedFallback bool   `json:"used_fallback"`
	ModelUsed    string `json:"model_used,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`

	ResponseDelaySeconds int       `json:"response_delay_seconds"`
	ResponseTimeMS       int64     `json:"response_time_ms"`
	ErrorMessage         string    `json:"error_message,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// ToMap renders the response with enums as their string values.
func (r *Response) ToMap() map[string]any {
	extracted := r.ExtractedInfo
	if extracted == nil {
		extracted = map[string]any{}
	}
	return map[string]any{
		"response_id":                 r.ResponseID,
		"lead_id":                     r.LeadID,
		"response_text":               r.ResponseText,
		"channel":                     string(r.Channel),
		"result":                      string(r.Result),
		"detected_intent":             string(r.DetectedIntent),
		"intent_confidence":           r.IntentConfidence,
		"sentiment":                   string(r.Sentiment),
		"used_llm_intent":             r.UsedLLMIntent,
		"conversation_state":          string(r.ConversationState),
		"lead_score":                  r.LeadScore,
		"score_delta":                 r.ScoreDelta,
		"qualification_progress":      r.QualificationProgress,
		"is_minimally_qualified":      r.IsMinimallyQualified,
		"extracted_info":              extracted,
		"should_handoff":              r.ShouldHandoff,
		"handoff_reason":              r.HandoffReason,
		"appointment_requested":       r.AppointmentRequested,
		"channel_preference_changed":  r.ChannelPreferenceChanged,
		"preferred_channel":           r.PreferredChannel,
		"channel_reduction_requested": r.ChannelReductionRequested,
		"contact_frequency":           r.ContactFrequency,
		"channel_acknowledgment":      r.ChannelAcknowledgment,
		"compliance_status":           r.ComplianceStatus,
		"compliance_reason":           r.ComplianceReason,
		"used_fallback":               r.UsedFallback,
		"model_used":                  r.ModelUsed,
		"tokens_used":                 r.TokensUsed,
		"response_delay_seconds":      r.ResponseDelaySeconds,
		"response_time_ms":            r.ResponseTimeMS,
		"error_message":               r.ErrorMessage,
		"created_at":                  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
