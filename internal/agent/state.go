package agent

import (
	"strings"
	"time"

	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
)

// State is the conversation phase.
type State string

const (
	StateInitial           State = "INITIAL"
	StateQualifying        State = "QUALIFYING"
	StateObjectionHandling State = "OBJECTION_HANDLING"
	StateScheduling        State = "SCHEDULING"
	StateNurture           State = "NURTURE"
	StateHandedOff         State = "HANDED_OFF"
)

// ParseState accepts any casing.
func ParseState(s string) (State, bool) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateInitial, StateQualifying, StateObjectionHandling, StateScheduling, StateNurture, StateHandedOff:
		return st, true
	}
	return "", false
}

var fallbackCategory = map[State]templates.Category{
	StateInitial:           templates.CategoryWelcome,
	StateQualifying:        templates.CategoryQualification,
	StateObjectionHandling: templates.CategoryObjection,
	StateScheduling:        templates.CategoryScheduling,
	StateNurture:           templates.CategoryNurture,
	StateHandedOff:         templates.CategoryHandoff,
}

// categoryFor maps a state to its fallback template category.
func categoryFor(s State) templates.Category {
	if c, ok := fallbackCategory[s]; ok {
		return c
	}
	return templates.CategoryFollowUp
}

const maxTransitionHistory = 50

// Transition is one recorded state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ConversationSnapshot is the persisted form of a ConversationManager.
type ConversationSnapshot struct {
	LeadID           string       `json:"lead_id"`
	State            State        `json:"state"`
	ObjectionCount   int          `json:"objection_count"`
	InboundCount     int          `json:"inbound_count"`
	OutboundCount    int          `json:"outbound_count"`
	LastAIMessage    string       `json:"last_ai_message,omitempty"`
	PreferredChannel string       `json:"preferred_channel,omitempty"`
	ContactFrequency string       `json:"contact_frequency,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	LastInboundAt    time.Time    `json:"last_inbound_at,omitzero"`
	LastOutboundAt   time.Time    `json:"last_outbound_at,omitzero"`
	Transitions      []Transition `json:"transitions,omitempty"`
}

// ConversationManager tracks one lead's conversation state. Like the
// qualification manager it is not safe for concurrent use.
type ConversationManager struct {
	snap ConversationSnapshot
	now  func() time.Time
}

func NewConversationManager(leadID string, now func() time.Time) *ConversationManager {
	if now == nil {
		now = time.Now
	}
	return &ConversationManager{
		snap: ConversationSnapshot{LeadID: leadID, State: StateInitial, CreatedAt: now()},
		now:  now,
	}
}

// RestoreConversation rebuilds a manager from a snapshot.
func RestoreConversation(snap ConversationSnapshot, now func() time.Time) *ConversationManager {
	if now == nil {
		now = time.Now
	}
	if _, ok := ParseState(string(snap.State)); !ok {
		snap.State = StateInitial
	}
	snap.Transitions = append([]Transition(nil), snap.Transitions...)
	return &ConversationManager{snap: snap, now: now}
}

func (c *ConversationManager) State() State { return c.snap.State }

// TransitionTo moves to state and records why. Moving to the current
// state is a no-op and returns false.
func (c *ConversationManager) TransitionTo(to State, reason string) bool {
	if to == "" || to == c.snap.State {
		return false
	}
	c.snap.Transitions = append(c.snap.Transitions, Transition{From: c.snap.State, To: to, Reason: reason, At: c.now()})
	if n := len(c.snap.Transitions); n > maxTransitionHistory {
		c.snap.Transitions = c.snap.Transitions[n-maxTransitionHistory:]
	}
	c.snap.State = to
	return true
}

func (c *ConversationManager) RecordInbound() {
	c.snap.InboundCount++
	c.snap.LastInboundAt = c.now()
}

func (c *ConversationManager) RecordOutbound(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.snap.OutboundCount++
	c.snap.LastAIMessage = text
	c.snap.LastOutboundAt = c.now()
}

func (c *ConversationManager) IncrementObjections() int {
	c.snap.ObjectionCount++
	return c.snap.ObjectionCount
}

func (c *ConversationManager) ObjectionCount() int { return c.snap.ObjectionCount }

func (c *ConversationManager) LastAIMessage() string { return c.snap.LastAIMessage }

func (c *ConversationManager) SetPreferredChannel(channel string) { c.snap.PreferredChannel = channel }

func (c *ConversationManager) SetContactFrequency(frequency string) { c.snap.ContactFrequency = frequency }

// Snapshot returns a copy safe to serialize.
func (c *ConversationManager) Snapshot() ConversationSnapshot {
	out := c.snap
	out.Transitions = append([]Transition(nil), c.snap.Transitions...)
	return out
}
