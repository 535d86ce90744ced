package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

type stubLLM struct {
	text     string
	err      error
	requests []llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text, Model: "stub"}, nil
}

func TestDetector_Detect(t *testing.T) {
	detector := NewDetector(logging.Discard())

	tests := []struct {
		name          string
		message       string
		wantIntent    Intent
		wantConf      float64
		wantSentiment Sentiment
		wantUrgency   Urgency
	}{
		{"greeting", "Hi", Greeting, 0.9, SentimentNeutral, UrgencyNormal},
		{"stop keyword", "STOP", OptOut, 0.95, SentimentNeutral, UrgencyUrgent},
		{"empty", "   ", Unknown, 0, SentimentNeutral, UrgencyNormal},
		{"unmatched", "blah blah", Unknown, 0.3, SentimentNeutral, UrgencyNormal},
		{"unmatched question", "Where are you located?", Question, 0.6, SentimentNeutral, UrgencyNormal},
		{"deferred beats not ready", "I'm not ready yet, call me next month", DeferredFollowup, 0.9, SentimentNeutral, UrgencyNormal},
		{"high priority wins tie", "this is annoying, i'm not interested", Frustration, 0.85, SentimentNegative, UrgencyUrgent},
		{"budget range", "budget is around 500k-600k, thinking Thursday at 3pm", BudgetRange, 0.85, SentimentNeutral, UrgencyNormal},
		{"email preference", "email me instead please", ChannelPreferEmail, 0.85, SentimentNeutral, UrgencyNormal},
		{"escalation", "can I talk to a real person", EscalationRequest, 0.9, SentimentNeutral, UrgencyUrgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Detect(context.Background(), tt.message, nil, false)
			assert.Equal(t, tt.wantIntent, got.PrimaryIntent)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantSentiment, got.Sentiment)
			assert.Equal(t, tt.wantUrgency, got.Urgency)
			assert.Equal(t, tt.message, got.RawMessage)
			assert.False(t, got.UsedLLM)
		})
	}
}

func TestDetector_DeferredKeepsNotReadyAsSecondary(t *testing.T) {
	got := NewDetector(logging.Discard()).Detect(context.Background(), "I'm not ready yet, call me next month", nil, false)

	require.NotEmpty(t, got.SecondaryIntents)
	assert.Equal(t, ObjectionNotReady, got.SecondaryIntents[0].Intent)
	assert.Less(t, got.SecondaryIntents[0].Confidence, got.Confidence)

	ent, ok := got.Entity(EntityDeferredDate)
	require.True(t, ok)
	assert.Equal(t, 30, ent.Value.(DeferredDate).Days)
}

func TestDetector_ChannelSwitchIsNotAnOptOut(t *testing.T) {
	detector := NewDetector(logging.Discard())

	tests := []struct {
		message string
		want    Intent
	}{
		{"Please don't text me, email me instead", ChannelPreferEmail},
		{"stop texting me and email me instead", ChannelPreferEmail},
		{"don't text me, call me instead", ChannelPreferCall},
		{"STOP", OptOut},
		{"stop texting me", OptOut},
		{"please don't contact me", OptOut},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := detector.Detect(context.Background(), tt.message, nil, false)
			assert.Equal(t, tt.want, got.PrimaryIntent)
			if tt.want != OptOut {
				assert.True(t, got.Has(OptOut), "opt-out reading stays secondary")
			}
		})
	}
}

func TestPreferChannelSwitch(t *testing.T) {
	scored := []Scored{
		{Intent: OptOut, Confidence: 0.95},
		{Intent: Frustration, Confidence: 0.85},
		{Intent: ChannelPreferEmail, Confidence: 0.85},
	}
	preferChannelSwitch(scored)
	assert.Equal(t, []Scored{
		{Intent: ChannelPreferEmail, Confidence: 0.85},
		{Intent: OptOut, Confidence: 0.95},
		{Intent: Frustration, Confidence: 0.85},
	}, scored)

	alone := []Scored{{Intent: OptOut, Confidence: 0.95}, {Intent: Greeting, Confidence: 0.9}}
	preferChannelSwitch(alone)
	assert.Equal(t, OptOut, alone[0].Intent)
}

func TestDetector_BudgetRangeEntities(t *testing.T) {
	got := NewDetector(logging.Discard()).Detect(context.Background(), "budget is around 500k-600k, thinking Thursday at 3pm", nil, false)

	rng, ok := got.Entity(EntityBudgetRange)
	require.True(t, ok)
	assert.Equal(t, Range{Low: 500000, High: 600000}, rng.Value)

	slot, ok := got.Entity(EntityTimeSlot)
	require.True(t, ok)
	assert.Equal(t, TimeSlot{Day: "thursday", Time: "3pm"}, slot.Value)
	assert.True(t, got.Has(TimeSelection))
}

func TestDetector_Deterministic(t *testing.T) {
	detector := NewDetector(logging.Discard())
	messages := []string{
		"Hi",
		"budget is around 500k-600k, thinking Thursday at 3pm",
		"this is annoying, i'm not interested",
		"We're pre-approved and want a condo downtown asap",
		"maybe in a few months, just browsing for now",
	}
	for _, msg := range messages {
		first := detector.Detect(context.Background(), msg, nil, false)
		for i := 0; i < 5; i++ {
			again := detector.Detect(context.Background(), msg, nil, false)
			assert.Equal(t, first.PrimaryIntent, again.PrimaryIntent, msg)
			assert.Equal(t, first.Confidence, again.Confidence, msg)
			assert.Equal(t, first.SecondaryIntents, again.SecondaryIntents, msg)
		}
	}
}

func TestDetector_ResultInvariants(t *testing.T) {
	detector := NewDetector(logging.Discard())
	messages := []string{
		"Hi there, not interested, stop texting me",
		"damn these prices are crazy",
		"We're relocating for a new job, need a 3 bed townhouse in Round Rock",
		"text is better, and not so many texts please",
		"sounds good, see you then!",
	}
	for _, msg := range messages {
		got := detector.Detect(context.Background(), msg, nil, false)
		assert.GreaterOrEqual(t, got.Confidence, 0.0, msg)
		assert.LessOrEqual(t, got.Confidence, 1.0, msg)
		assert.LessOrEqual(t, len(got.SecondaryIntents), maxSecondary, msg)
		for i, s := range got.SecondaryIntents {
			assert.NotEqual(t, got.PrimaryIntent, s.Intent, msg)
			if i > 0 {
				prev := got.SecondaryIntents[i-1]
				if prev.Intent.IsHighPriority() == s.Intent.IsHighPriority() {
					assert.GreaterOrEqual(t, prev.Confidence, s.Confidence, msg)
				} else {
					assert.True(t, prev.Intent.IsHighPriority(), msg)
				}
			}
		}
	}
}

func TestDetector_LLMVerificationOverrides(t *testing.T) {
	client := &stubLLM{text: `Sure: {"primary_intent":"POSITIVE_INTEREST","confidence":0.92,"secondary_intents":["greeting",{"intent":"banana","confidence":0.9}],"sentiment":"positive","reasoning":"lead says interested"}`}
	detector := NewDetector(logging.Discard(), WithLLM(client, "intent-model"))

	got := detector.Detect(context.Background(), "Hello, interested", &Context{LastAIMessage: "Still looking?", CurrentState: "QUALIFYING"}, true)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "intent-model", client.requests[0].Model)
	assert.Contains(t, client.requests[0].Messages[0].Content, "Still looking?")
	assert.Contains(t, client.requests[0].System[0], "channel_reduction")

	assert.True(t, got.UsedLLM)
	assert.Equal(t, PositiveInterest, got.PrimaryIntent)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, SentimentPositive, got.Sentiment)
	assert.Equal(t, "lead says interested", got.Reasoning)
	require.Len(t, got.SecondaryIntents, 1)
	assert.Equal(t, Scored{Intent: Greeting, Confidence: 0.6}, got.SecondaryIntents[0])
}

func TestDetector_LLMFailuresKeepPatternResult(t *testing.T) {
	tests := []struct {
		name   string
		client *stubLLM
	}{
		{"client error", &stubLLM{err: errors.New("throttled")}},
		{"no json", &stubLLM{text: "I think they are interested"}},
		{"broken json", &stubLLM{text: `{"primary_intent": "positive_interest", "confidence": }`}},
		{"unknown intent", &stubLLM{text: `{"primary_intent":"BANANA","confidence":0.99}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := NewDetector(logging.Discard(), WithLLM(tt.client, "m"))
			got := detector.Detect(context.Background(), "Hello, interested", nil, true)
			assert.Len(t, tt.client.requests, 1)
			assert.False(t, got.UsedLLM)
			assert.Equal(t, PositiveInterest, got.PrimaryIntent)
			assert.InDelta(t, 0.7, got.Confidence, 1e-9)
		})
	}
}

func TestDetector_SkipsLLMWhenConfident(t *testing.T) {
	client := &stubLLM{text: `{"primary_intent":"greeting","confidence":1}`}
	detector := NewDetector(logging.Discard(), WithLLM(client, "m"))

	got := detector.Detect(context.Background(), "STOP", nil, true)
	assert.Equal(t, OptOut, got.PrimaryIntent)
	assert.Empty(t, client.requests)

	detector.Detect(context.Background(), "blah blah", nil, false)
	assert.Empty(t, client.requests, "caller disabled llm fallback")
}

func TestDetector_DetectAsync(t *testing.T) {
	client := &stubLLM{text: `{"primary_intent":"just_browsing","confidence":0.8}`}
	detector := NewDetector(logging.Discard(), WithLLM(client, "m"))

	fast := <-detector.DetectAsync(context.Background(), "Hi", nil, true)
	assert.Equal(t, Greeting, fast.PrimaryIntent)
	assert.Empty(t, client.requests)

	slow := <-detector.DetectAsync(context.Background(), "blah blah", nil, true)
	assert.Equal(t, JustBrowsing, slow.PrimaryIntent)
	assert.True(t, slow.UsedLLM)
	assert.Equal(t, UrgencyLow, slow.Urgency)
	assert.Len(t, client.requests, 1)
}

func TestNeedsVerification(t *testing.T) {
	tests := []struct {
		name string
		in   DetectedIntent
		want bool
	}{
		{"confident", DetectedIntent{PrimaryIntent: Greeting, Confidence: 0.9}, false},
		{"unknown", DetectedIntent{PrimaryIntent: Unknown, Confidence: 0.3}, true},
		{"low", DetectedIntent{PrimaryIntent: Thanks, Confidence: 0.7}, true},
		{"clear winner", DetectedIntent{PrimaryIntent: Thanks, Confidence: 0.8, SecondaryIntents: []Scored{{Greeting, 0.6}}}, false},
		{"ambiguous", DetectedIntent{PrimaryIntent: Thanks, Confidence: 0.8, SecondaryIntents: []Scored{{Greeting, 0.7}}}, true},
		{"margin boundary", DetectedIntent{PrimaryIntent: Thanks, Confidence: 0.75, SecondaryIntents: []Scored{{Greeting, 0.6}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsVerification(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "can you text me tomorrow", Normalize("  can   u txt me tmrw "))
	assert.Equal(t, "you are the best, thanks", Normalize("U r the best, THX"))
	assert.Equal(t, "budget 500k", Normalize("budget 500k"))
}

func TestParse(t *testing.T) {
	got, ok := Parse("OPT_OUT")
	assert.True(t, ok)
	assert.Equal(t, OptOut, got)

	_, ok = Parse("nonsense")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, len(AllIntents()), 45)
}
