package templates

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

type stubTracker struct {
	mu          sync.Mutex
	assignments []ABAssignment
	responses   []string
	outcomes    map[string]Outcome
	err         error
}

func (s *stubTracker) LogAssignment(_ context.Context, a ABAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *stubTracker) RecordResponse(_ context.Context, conversationID string) error {
	if s.err != nil {
		return s.err
	}
	s.responses = append(s.responses, conversationID)
	return nil
}

func (s *stubTracker) RecordOutcome(_ context.Context, conversationID string, outcome Outcome) error {
	if s.err != nil {
		return s.err
	}
	if s.outcomes == nil {
		s.outcomes = map[string]Outcome{}
	}
	s.outcomes[conversationID] = outcome
	return nil
}

func TestRender_Substitution(t *testing.T) {
	tmpl := &MessageTemplate{
		ID:       "t",
		Variants: []string{"Hi {first_name}, {property_address} is listed at {list_price}.{?open_house: Open house {open_house}!}"},
	}

	out := tmpl.Render(map[string]any{
		"first_name":       "Dana",
		"property_address": "12 Oak St",
		"list_price":       450000,
		"open_house":       "Sunday",
	}, 0)
	assert.Equal(t, "Hi Dana, 12 Oak St is listed at $450,000. Open house Sunday!", out)

	out = tmpl.Render(map[string]any{
		"first_name":       "",
		"property_address": "12 Oak St",
		"list_price":       "1250000",
		"open_house":       "",
	}, 0)
	assert.Equal(t, "Hi there, 12 Oak St is listed at $1,250,000.", out)
}

func TestRender_MissingVariableLeftInPlace(t *testing.T) {
	tmpl := &MessageTemplate{Variants: []string{"See {property_address}"}}
	assert.Equal(t, "See {property_address}", tmpl.Render(nil, 0))
}

func TestRender_Truncates(t *testing.T) {
	tmpl := &MessageTemplate{Variants: []string{"{body}"}, MaxChars: 20}
	out := tmpl.Render(map[string]any{"body": strings.Repeat("a", 50)}, 0)
	assert.Equal(t, strings.Repeat("a", 17)+"...", out)
	assert.Len(t, out, 20)

	short := tmpl.Render(map[string]any{"body": "fits"}, 0)
	assert.Equal(t, "fits", short)
}

func TestRender_TinyLimitHardTruncates(t *testing.T) {
	for limit := 1; limit <= 3; limit++ {
		tmpl := &MessageTemplate{Variants: []string{"Hello there"}, MaxChars: limit}
		assert.Equal(t, "Hello there"[:limit], tmpl.Render(nil, 0))
	}

	tmpl := &MessageTemplate{Variants: []string{"Hello there"}, MaxChars: 4}
	assert.Equal(t, "H...", tmpl.Render(nil, 0))
}

func TestRender_RandomVariantStaysInCatalog(t *testing.T) {
	tmpl := &MessageTemplate{Variants: []string{"a", "b", "c"}}
	for range 50 {
		assert.Contains(t, []string{"a", "b", "c"}, tmpl.Render(nil, -1))
	}
	assert.Equal(t, "b", tmpl.Render(nil, 4))
}

func TestDefaultLibrary_RoundTrip(t *testing.T) {
	lib := DefaultLibrary()
	for _, c := range []Category{CategoryWelcome, CategoryQualification, CategoryObjection, CategoryScheduling,
		CategoryNurture, CategoryHandoff, CategoryFollowUp, CategoryOptOut, CategoryChannel} {
		tmpls := lib.ByCategory(c)
		require.NotEmpty(t, tmpls, "category %s", c)
		for _, tmpl := range tmpls {
			vars := map[string]any{}
			for _, v := range tmpl.Variables {
				vars[v] = "value"
			}
			for i := range tmpl.Variants {
				out := tmpl.Render(vars, i)
				assert.False(t, placeholderRE.MatchString(out), "%s[%d] left a placeholder: %q", tmpl.ID, i, out)
				assert.NotContains(t, out, "{?")
				assert.LessOrEqual(t, len([]rune(out)), DefaultMaxChars)
			}
		}
	}
}

func TestDefaultLibrary_ConditionalOmitted(t *testing.T) {
	tmpl, ok := DefaultLibrary().Get(NurtureCheckIn)
	require.True(t, ok)
	out := tmpl.Render(map[string]any{"first_name": "Sam", "location": ""}, 0)
	assert.Equal(t, "Hi Sam, just checking in. Still thinking about a move? I'm happy to send a few listings.", out)
}

func TestGetMessage_UnknownTemplate(t *testing.T) {
	e := NewEngine(logging.Discard())
	text, ok := e.GetMessage(context.Background(), "nope", nil, MessageOptions{})
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestGetMessage_StickyVariant(t *testing.T) {
	tracker := &stubTracker{}
	e := NewEngine(logging.Discard(), WithABTracker(tracker))
	ctx := context.Background()
	vars := map[string]any{"first_name": "Ana", "agent_name": "Jo"}

	tmpl, _ := e.Library().Get(WelcomeGeneric)
	want := tmpl.Render(vars, VariantIndex("lead-42", WelcomeGeneric, len(tmpl.Variants)))

	for range 25 {
		got, ok := e.GetMessage(ctx, WelcomeGeneric, vars, MessageOptions{LeadID: "lead-42", ConversationID: "c1"})
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	require.Len(t, tracker.assignments, 25)
	assert.Equal(t, "c1", tracker.assignments[0].ConversationID)
	assert.Equal(t, 2, tracker.assignments[0].VariantCount)
}

func TestVariantIndex_Distribution(t *testing.T) {
	seen := map[int]bool{}
	for i := range 64 {
		idx := VariantIndex("lead-"+string(rune('a'+i%26))+strings.Repeat("x", i), "welcome_generic", 3)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 3)
		seen[idx] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, VariantIndex("lead", "t", 1))
	assert.Equal(t, VariantIndex("lead", "t", 5), VariantIndex("lead", "t", 5))
}

func TestGetMessage_TrackingFailureIsBestEffort(t *testing.T) {
	tracker := &stubTracker{err: errors.New("db down")}
	e := NewEngine(logging.Discard(), WithABTracker(tracker))
	text, ok := e.GetMessage(context.Background(), HandoffGeneric, map[string]any{"agent_name": "Jo"}, MessageOptions{LeadID: "l1"})
	assert.True(t, ok)
	assert.NotEmpty(t, text)
}

func TestGetMessage_SkipTracking(t *testing.T) {
	tracker := &stubTracker{}
	e := NewEngine(logging.Discard(), WithABTracker(tracker))
	_, ok := e.GetMessage(context.Background(), HandoffGeneric, nil, MessageOptions{LeadID: "l1", SkipABTracking: true})
	assert.True(t, ok)
	assert.Empty(t, tracker.assignments)
}

func TestRecordABTest(t *testing.T) {
	ctx := context.Background()

	assert.False(t, NewEngine(logging.Discard()).RecordABTestResponse(ctx, "c1"))

	tracker := &stubTracker{}
	e := NewEngine(logging.Discard(), WithABTracker(tracker))
	assert.True(t, e.RecordABTestResponse(ctx, "c1"))
	assert.True(t, e.RecordABTestOutcome(ctx, "c1", OutcomeScheduled))
	assert.False(t, e.RecordABTestOutcome(ctx, "", OutcomeScheduled))
	assert.Equal(t, []string{"c1"}, tracker.responses)
	assert.Equal(t, OutcomeScheduled, tracker.outcomes["c1"])

	tracker.err = errors.New("boom")
	assert.False(t, e.RecordABTestResponse(ctx, "c1"))
	assert.False(t, e.RecordABTestOutcome(ctx, "c1", OutcomeOptedOut))
}

func TestWelcomeMessage_Selection(t *testing.T) {
	e := NewEngine(logging.Discard())
	ctx := context.Background()

	property := e.WelcomeMessage(ctx, Recipient{LeadID: "l1", FirstName: "Kim", AgentName: "Jo", PropertyAddress: "9 Elm Ct"})
	assert.Contains(t, property, "9 Elm Ct")

	referral := e.WelcomeMessage(ctx, Recipient{LeadID: "l1", FirstName: "Kim", AgentName: "Jo", ReferralSource: "HomeLight"})
	assert.Contains(t, referral, "HomeLight")

	generic := e.WelcomeMessage(ctx, Recipient{LeadID: "l1", AgentName: "Jo"})
	assert.Contains(t, generic, "there")
	assert.Contains(t, generic, "Jo")
}

func TestConvenienceMessages(t *testing.T) {
	e := NewEngine(logging.Discard())
	ctx := context.Background()
	r := Recipient{LeadID: "l1", FirstName: "Kim", AgentName: "Jo"}

	assert.Equal(t, OptOutText, e.OptOutConfirmation(ctx))
	assert.Equal(t, "Understood, I'll reach out less often (monthly).", e.ChannelAckMessage(ctx, r, "", "monthly"))
	assert.Equal(t, "Happy to chat by phone. Jo will give you a call.", e.ChannelAckMessage(ctx, r, "call", ""))
	assert.Equal(t, "Got it, I'll switch to email from here.", e.ChannelAckMessage(ctx, r, "email", ""))
	assert.Contains(t, e.HandoffMessage(ctx, r, HandoffKindError), "connect you with someone")
	assert.Contains(t, e.FollowUpMessage(ctx, r, "in a couple of weeks"), "in a couple of weeks")

	qualTmpl, _ := e.Library().Get(QualificationFallback)
	fallback := e.FallbackMessage(ctx, CategoryQualification, r)
	assert.Contains(t, []string{qualTmpl.Render(r.vars(), 0), qualTmpl.Render(r.vars(), 1)}, fallback)

	followTmpl, _ := e.Library().Get(FollowUpGeneric)
	unknown := e.FallbackMessage(ctx, Category("mystery"), r)
	assert.Contains(t, []string{followTmpl.Render(r.vars(), 0), followTmpl.Render(r.vars(), 1)}, unknown)
}
