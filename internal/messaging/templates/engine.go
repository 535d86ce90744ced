package templates

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// Outcome is the terminal result of a conversation recorded against its
// A/B assignments.
type Outcome string

const (
	OutcomeQualified  Outcome = "qualified"
	OutcomeScheduled  Outcome = "appointment_scheduled"
	OutcomeHandedOff  Outcome = "handed_off"
	OutcomeOptedOut   Outcome = "opted_out"
	OutcomeNoResponse Outcome = "no_response"
)

// ABAssignment records which variant a lead was shown.
type ABAssignment struct {
	LeadID         string
	ConversationID string
	TemplateID     string
	VariantIndex   int
	VariantCount   int
	AssignedAt     time.Time
}

// ABTracker persists A/B assignments and their results.
type ABTracker interface {
	LogAssignment(ctx context.Context, a ABAssignment) error
	RecordResponse(ctx context.Context, conversationID string) error
	RecordOutcome(ctx context.Context, conversationID string, outcome Outcome) error
}

// MessageOptions controls variant assignment for one render.
type MessageOptions struct {
	LeadID         string
	ConversationID string
	SkipABTracking bool
}

const defaultAssignmentCacheSize = 10000

// Engine renders catalog templates with sticky per-lead variants.
type Engine struct {
	library     *Library
	tracker     ABTracker
	logger      *logging.Logger
	assignments *lru.Cache[string, int]
	now         func() time.Time
}

type EngineOption func(*Engine)

func WithABTracker(t ABTracker) EngineOption {
	return func(e *Engine) { e.tracker = t }
}

func WithLibrary(l *Library) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.library = l
		}
	}
}

func WithAssignmentCacheSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.assignments, _ = lru.New[string, int](n)
		}
	}
}

func NewEngine(logger *logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	cache, _ := lru.New[string, int](defaultAssignmentCacheSize)
	e := &Engine{
		library:     DefaultLibrary(),
		logger:      logger.WithComponent("template-engine"),
		assignments: cache,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Library exposes the catalog the engine renders from.
func (e *Engine) Library() *Library { return e.library }

// GetMessage renders templateID. It returns false when the template is
// unknown. With a lead ID the variant is a stable function of the lead and
// template, so a lead never sees the wording shift.
func (e *Engine) GetMessage(ctx context.Context, templateID string, vars map[string]any, opts MessageOptions) (string, bool) {
	tmpl, ok := e.library.Get(templateID)
	if !ok {
		e.logger.Warn("unknown template", "template_id", templateID)
		return "", false
	}

	idx := -1
	switch {
	case len(tmpl.Variants) == 1:
		idx = 0
	case opts.LeadID != "":
		idx = e.assignVariant(opts.LeadID, templateID, len(tmpl.Variants))
		if !opts.SkipABTracking && e.tracker != nil {
			e.logAssignment(ctx, ABAssignment{
				LeadID:         opts.LeadID,
				ConversationID: opts.ConversationID,
				TemplateID:     templateID,
				VariantIndex:   idx,
				VariantCount:   len(tmpl.Variants),
				AssignedAt:     e.now().UTC(),
			})
		}
	}
	return tmpl.Render(vars, idx), true
}

func (e *Engine) assignVariant(leadID, templateID string, n int) int {
	key := leadID + ":" + templateID
	if idx, ok := e.assignments.Get(key); ok && idx < n {
		return idx
	}
	idx := VariantIndex(leadID, templateID, n)
	e.assignments.Add(key, idx)
	return idx
}

// VariantIndex hashes "lead:template" with FNV-1a so assignments survive
// restarts.
func VariantIndex(leadID, templateID string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(leadID + ":" + templateID))
	return int(h.Sum64() % uint64(n))
}

func (e *Engine) logAssignment(ctx context.Context, a ABAssignment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ab assignment logging panicked", "panic", r, "template_id", a.TemplateID)
		}
	}()
	if err := e.tracker.LogAssignment(ctx, a); err != nil {
		e.logger.Warn("failed to log ab assignment", "error", err, "template_id", a.TemplateID, "lead_id", a.LeadID)
	}
}

// RecordABTestResponse marks that the lead replied in the conversation.
func (e *Engine) RecordABTestResponse(ctx context.Context, conversationID string) bool {
	if e.tracker == nil || conversationID == "" {
		return false
	}
	if err := e.tracker.RecordResponse(ctx, conversationID); err != nil {
		e.logger.Warn("failed to record ab response", "error", err, "conversation_id", conversationID)
		return false
	}
	return true
}

// RecordABTestOutcome stores the conversation outcome.
func (e *Engine) RecordABTestOutcome(ctx context.Context, conversationID string, outcome Outcome) bool {
	if e.tracker == nil || conversationID == "" {
		return false
	}
	if err := e.tracker.RecordOutcome(ctx, conversationID, outcome); err != nil {
		e.logger.Warn("failed to record ab outcome", "error", err, "conversation_id", conversationID, "outcome", outcome)
		return false
	}
	return true
}

// Recipient carries the lead fields templates personalize with.
type Recipient struct {
	LeadID          string
	ConversationID  string
	FirstName       string
	AgentName       string
	BrokerageName   string
	PropertyAddress string
	ListPrice       int
	ReferralSource  string
	Location        string
	Email           string
}

func (r Recipient) vars() map[string]any {
	v := map[string]any{
		"first_name":       strings.TrimSpace(r.FirstName),
		"agent_name":       r.AgentName,
		"brokerage_name":   r.BrokerageName,
		"property_address": r.PropertyAddress,
		"referral_source":  r.ReferralSource,
		"location":         r.Location,
		"email":            r.Email,
	}
	if r.ListPrice > 0 {
		v["list_price"] = r.ListPrice
	}
	if r.AgentName == "" {
		v["agent_name"] = "your agent"
	}
	return v
}

func (r Recipient) options() MessageOptions {
	return MessageOptions{LeadID: r.LeadID, ConversationID: r.ConversationID}
}

func (e *Engine) render(ctx context.Context, id string, r Recipient, extra map[string]any) string {
	vars := r.vars()
	for k, v := range extra {
		vars[k] = v
	}
	text, _ := e.GetMessage(ctx, id, vars, r.options())
	return text
}

// WelcomeMessage picks the property-inquiry, referral or generic welcome.
func (e *Engine) WelcomeMessage(ctx context.Context, r Recipient) string {
	switch {
	case r.PropertyAddress != "":
		return e.render(ctx, WelcomePropertyInquiry, r, nil)
	case r.ReferralSource != "":
		return e.render(ctx, WelcomeReferral, r, nil)
	default:
		return e.render(ctx, WelcomeGeneric, r, nil)
	}
}

func (e *Engine) SchedulingMessage(ctx context.Context, r Recipient) string {
	if r.PropertyAddress != "" {
		return e.render(ctx, SchedulingProperty, r, nil)
	}
	return e.render(ctx, SchedulingGeneric, r, nil)
}

// HandoffKind selects the handoff wording.
type HandoffKind int

const (
	HandoffKindGeneric HandoffKind = iota
	HandoffKindEscalation
	HandoffKindError
)

func (e *Engine) HandoffMessage(ctx context.Context, r Recipient, kind HandoffKind) string {
	switch kind {
	case HandoffKindEscalation:
		return e.render(ctx, HandoffEscalation, r, nil)
	case HandoffKindError:
		return e.render(ctx, HandoffError, r, nil)
	default:
		return e.render(ctx, HandoffGeneric, r, nil)
	}
}

var fallbackByCategory = map[Category]string{
	CategoryWelcome:       WelcomeGeneric,
	CategoryQualification: QualificationFallback,
	CategoryObjection:     ObjectionFallback,
	CategoryScheduling:    SchedulingGeneric,
	CategoryNurture:       NurtureCheckIn,
	CategoryHandoff:       HandoffGeneric,
	CategoryFollowUp:      FollowUpGeneric,
}

// FallbackMessage is used when generated replies are unusable.
func (e *Engine) FallbackMessage(ctx context.Context, c Category, r Recipient) string {
	id, ok := fallbackByCategory[c]
	if !ok {
		id = FollowUpGeneric
	}
	return e.render(ctx, id, r, nil)
}

func (e *Engine) NurtureMessage(ctx context.Context, r Recipient) string {
	return e.render(ctx, NurtureCheckIn, r, nil)
}

// FollowUpMessage acknowledges a deferral such as "in a couple of weeks".
func (e *Engine) FollowUpMessage(ctx context.Context, r Recipient, phrase string) string {
	if strings.TrimSpace(phrase) == "" {
		phrase = "in a bit"
	}
	return e.render(ctx, FollowUpDeferred, r, map[string]any{"follow_up_phrase": phrase})
}

// OptOutConfirmation always returns OptOutText.
func (e *Engine) OptOutConfirmation(ctx context.Context) string {
	text, ok := e.GetMessage(ctx, OptOutConfirmationID, nil, MessageOptions{})
	if !ok {
		return OptOutText
	}
	return text
}

// ChannelAckMessage acknowledges a channel preference ("email", "sms",
// "call") or, when frequency is set, a request for fewer messages.
func (e *Engine) ChannelAckMessage(ctx context.Context, r Recipient, channel, frequency string) string {
	if frequency != "" {
		return e.render(ctx, ChannelAckReduction, r, map[string]any{"frequency": frequency})
	}
	switch channel {
	case "email":
		return e.render(ctx, ChannelAckEmail, r, nil)
	case "call":
		return e.render(ctx, ChannelAckCall, r, nil)
	default:
		return e.render(ctx, ChannelAckSMS, r, nil)
	}
}
