package qualification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func firstVariant(int) int { return 0 }

func TestScore_Bounds(t *testing.T) {
	timelines := []string{"", TimelineImmediate, TimelineShort, TimelineMedium, TimelineLong, TimelineUnknown}
	budgets := []Data{{}, {Budget: 400000}, {BudgetRangeLow: 300000, BudgetRangeHigh: 400000}, {IsPreApproved: true}, {IsPreApproved: true, Budget: 500000}}
	locations := [][]string{nil, {"Austin"}, {"Austin", "Round Rock"}, {"a", "b", "c", "d", "e"}}
	motivations := []string{"", "job", "investment"}

	for _, tl := range timelines {
		for _, b := range budgets {
			for _, loc := range locations {
				for _, mot := range motivations {
					for _, extras := range []bool{false, true} {
						d := b
						d.Timeline = tl
						d.LocationPreferences = loc
						d.Motivation = mot
						if extras {
							d.PropertyTypes = []string{"condo"}
							d.CurrentSituation = "renting"
							d.DecisionMakers = "self"
						}
						s := Score(d)
						assert.GreaterOrEqual(t, s, 0)
						assert.LessOrEqual(t, s, 100)

						if IsMinimallyQualified(d) {
							assert.NotEmpty(t, d.Timeline)
							assert.True(t, d.Budget > 0 || d.BudgetRangeLow > 0 || d.IsPreApproved)
							assert.NotEmpty(t, d.LocationPreferences)
						}
					}
				}
			}
		}
	}
}

func TestScore_Rubric(t *testing.T) {
	tests := []struct {
		name string
		data Data
		want int
	}{
		{"empty", Data{}, 0},
		{"everything", Data{
			Timeline:            TimelineImmediate,
			IsPreApproved:       true,
			LocationPreferences: []string{"Austin"},
			PropertyTypes:       []string{"condo"},
			Motivation:          "job",
			CurrentSituation:    "renting",
			DecisionMakers:      "self",
		}, 100},
		{"broad and slow", Data{
			Timeline:            TimelineLong,
			BudgetRangeLow:      300000,
			LocationPreferences: []string{"a", "b", "c", "d"},
		}, 30},
		{"specific budget beats range", Data{Budget: 400000, BudgetRangeLow: 300000}, 20},
		{"non-urgent motivation", Data{Timeline: TimelineShort, Motivation: "investment", LocationPreferences: []string{"a", "b"}}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.data))
		})
	}
}

func TestUpdateFromIntent_BudgetRangeFromDetector(t *testing.T) {
	msg := "budget is around 500k-600k, thinking Thursday at 3pm"
	detected := intent.NewDetector(logging.Discard()).Detect(context.Background(), msg, nil, false)

	m := NewManager("lead-1")
	updated := m.UpdateFromIntent(string(detected.PrimaryIntent), detected.ExtractedEntities, msg)

	snap := m.Snapshot()
	assert.Equal(t, 500000, snap.BudgetRangeLow)
	assert.Equal(t, 600000, snap.BudgetRangeHigh)
	assert.Zero(t, snap.Budget)
	assert.Equal(t, 500000, updated["budget_range_low"])
	assert.Equal(t, 600000, updated["budget_range_high"])
	assert.Equal(t, 15, snap.QualificationScore)
}

func TestUpdateFromIntent_IntentDriven(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager("lead-1", WithClock(func() time.Time { return now }))

	m.UpdateFromIntent("timeline_short", nil, "")
	m.UpdateFromIntent("TIMELINE_UNKNOWN", nil, "")
	assert.Equal(t, TimelineShort, m.Snapshot().Timeline, "unknown never overwrites a known timeline")

	updated := m.UpdateFromIntent("budget_preapproved", []intent.ExtractedEntity{{Type: intent.EntityBudget, Value: 450000}}, "")
	snap := m.Snapshot()
	assert.True(t, snap.IsPreApproved)
	assert.Equal(t, PreApprovalApproved, snap.PreApprovalStatus)
	assert.Equal(t, 450000, snap.Budget)
	assert.Equal(t, 450000, snap.PreApprovalAmount)
	assert.Equal(t, true, updated["is_pre_approved"])

	m.UpdateFromIntent("motivation_job", nil, "")
	snap = m.Snapshot()
	assert.Equal(t, "job", snap.Motivation)
	assert.Equal(t, now, snap.UpdatedAt)
	assert.Equal(t, 20+25+10, snap.QualificationScore)
}

func TestUpdateFromIntent_ListsAreDeduplicated(t *testing.T) {
	m := NewManager("lead-1")
	m.UpdateFromIntent("location_preference", []intent.ExtractedEntity{{Type: intent.EntityLocation, Value: "Round Rock"}}, "")
	updated := m.UpdateFromIntent("location_preference", []intent.ExtractedEntity{{Type: intent.EntityLocation, Value: "round rock"}}, "")
	assert.NotContains(t, updated, "location_preferences")

	m.UpdateFromIntent("location_preference", []intent.ExtractedEntity{
		{Type: intent.EntityLocation, Value: "Austin"},
		{Type: intent.EntityPropertyType, Value: "condo"},
	}, "")
	m.UpdateFromIntent("property_type", []intent.ExtractedEntity{{Type: intent.EntityPropertyType, Value: "condo"}}, "")

	snap := m.Snapshot()
	assert.Equal(t, []string{"Round Rock", "Austin"}, snap.LocationPreferences)
	assert.Equal(t, []string{"condo"}, snap.PropertyTypes)
}

func TestUpdateFromIntent_MessageHeuristics(t *testing.T) {
	m := NewManager("lead-1")
	updated := m.UpdateFromIntent("unknown", nil, "we're renting and my wife wants a yard")
	assert.Equal(t, "renting", updated["current_situation"])
	assert.Equal(t, "with_wife", updated["decision_makers"])
}

func TestMergeExtractedInfo(t *testing.T) {
	m := NewManager("lead-1")
	updated := m.MergeExtractedInfo(map[string]any{
		"timeline":     "3 months",
		"budget":       450000.0,
		"location":     "Austin",
		"pre_approved": true,
		"bogus":        1,
	})

	assert.Equal(t, TimelineShort, updated["timeline"])
	assert.Equal(t, 450000, updated["budget"])
	assert.NotContains(t, updated, "bogus")

	snap := m.Snapshot()
	assert.Equal(t, []string{"Austin"}, snap.LocationPreferences)
	assert.True(t, snap.IsPreApproved)
	assert.True(t, m.Progress().IsMinimallyQualified)
}

func TestNextQuestion_OrderAndFollowUps(t *testing.T) {
	m := NewManager("lead-1", WithPicker(firstVariant))

	q, text, ok := m.NextQuestion(nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "timeline_main", q.ID)
	assert.Equal(t, "When are you hoping to make a move?", text)

	q, _, ok = m.NextQuestion(nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "budget_main", q.ID, "does not repeat the previous category")

	q, text, ok = m.NextQuestion(nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "timeline_main", q.ID)
	assert.Equal(t, q.FollowUps[0], text)

	assert.Equal(t, []string{"timeline_main", "budget_main", "timeline_main"}, m.Snapshot().QuestionsAsked)
}

func TestNextQuestion_AvoidCategory(t *testing.T) {
	m := NewManager("lead-1", WithPicker(firstVariant))
	q, _, ok := m.NextQuestion(nil, CategoryTimeline, 0)
	require.True(t, ok)
	assert.Equal(t, "budget_main", q.ID)
}

func TestNextQuestion_DependsOn(t *testing.T) {
	base := Data{
		Timeline:            TimelineShort,
		LocationPreferences: []string{"Austin"},
		Motivation:          "job",
		PropertyTypes:       []string{"condo"},
		CurrentSituation:    "renting",
		DecisionMakers:      "self",
		MustHaves:           []string{"yard"},
		BedroomsMin:         3,
	}
	q, _, ok := NewManagerFrom("lead-1", base, WithPicker(firstVariant)).NextQuestion(nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "budget_main", q.ID, "pre-approval waits for a budget")

	withBudget := base
	withBudget.Budget = 400000
	q, _, ok = NewManagerFrom("lead-1", withBudget, WithPicker(firstVariant)).NextQuestion(nil, "", 0)
	require.True(t, ok)
	assert.Equal(t, "preapproval_main", q.ID)
}

func TestNextQuestion_StopConditions(t *testing.T) {
	minimal := Data{
		Timeline:            TimelineShort,
		Budget:              400000,
		LocationPreferences: []string{"Austin"},
		QuestionsAsked:      []string{"timeline_main", "budget_main", "location_main"},
	}
	_, _, ok := NewManagerFrom("lead-1", minimal).NextQuestion(nil, "", 0)
	assert.False(t, ok, "minimally qualified after three questions")

	minimal.QuestionsAsked = minimal.QuestionsAsked[:2]
	_, _, ok = NewManagerFrom("lead-1", minimal).NextQuestion(nil, "", 0)
	assert.True(t, ok)

	capped := NewManager("lead-1", WithMaxQuestions(2))
	_, _, ok = capped.NextQuestion(nil, "", 0)
	require.True(t, ok)
	_, _, ok = capped.NextQuestion(nil, "", 0)
	require.True(t, ok)
	_, _, ok = capped.NextQuestion(nil, "", 0)
	assert.False(t, ok)

	_, _, ok = NewManagerFrom("lead-1", Data{QuestionsAsked: []string{"timeline_main"}}).NextQuestion(nil, "", 1)
	assert.False(t, ok)
}

func TestShouldContinueQualifying(t *testing.T) {
	complete := Data{
		Timeline:            TimelineShort,
		Budget:              400000,
		LocationPreferences: []string{"Austin"},
	}
	full := complete
	full.PreApprovalStatus = PreApprovalNotApproved
	full.Motivation = "family"

	asked3 := complete
	asked3.QuestionsAsked = []string{"a", "b", "c"}

	tests := []struct {
		name string
		m    *Manager
		want bool
	}{
		{"fresh", NewManager("l"), true},
		{"critical done, high missing", NewManagerFrom("l", complete), true},
		{"critical and high done", NewManagerFrom("l", full), false},
		{"minimal after three questions", NewManagerFrom("l", asked3), false},
		{"max questions reached", NewManagerFrom("l", Data{QuestionsAsked: []string{"a"}}, WithMaxQuestions(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.ShouldContinueQualifying())
		})
	}
}

func TestProgress(t *testing.T) {
	p := NewManager("l").Progress()
	assert.Equal(t, 3, p.TotalCritical)
	assert.Equal(t, 2, p.TotalHigh)
	assert.Equal(t, 2, p.TotalMedium)
	assert.Equal(t, 3, p.TotalLow)
	assert.Zero(t, p.OverallPercentage)
	assert.Len(t, p.MissingCategories, 10)
	assert.False(t, p.IsMinimallyQualified)

	p = NewManagerFrom("l", Data{Timeline: TimelineShort, Budget: 400000, LocationPreferences: []string{"Austin"}}).Progress()
	assert.Equal(t, 3, p.CompletedCritical)
	assert.InDelta(t, 30.0, p.OverallPercentage, 1e-9)
	assert.True(t, p.IsMinimallyQualified)
	assert.False(t, p.IsFullyQualified)
}

func TestSnapshotIsolation(t *testing.T) {
	m := NewManager("l")
	m.UpdateFromIntent("location_preference", []intent.ExtractedEntity{{Type: intent.EntityLocation, Value: "Austin"}}, "")
	snap := m.Snapshot()
	snap.LocationPreferences[0] = "changed"
	assert.Equal(t, "Austin", m.Snapshot().LocationPreferences[0])

	m.Reset()
	assert.Empty(t, m.Snapshot().LocationPreferences)
}
