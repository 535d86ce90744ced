package objection

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		intent string
		want   Type
		ok     bool
	}{
		{"objection_other_agent", OtherAgent, true},
		{"OBJECTION_NOT_READY", NotReady, true},
		{"just_browsing", JustBrowsing, true},
		{"objection_price", Price, true},
		{"objection_timing", Timing, true},
		{"negative_interest", NotInterested, true},
		{"greeting", "", false},
		{"made_up", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.intent)
		assert.Equal(t, tt.want, got, tt.intent)
		assert.Equal(t, tt.ok, ok, tt.intent)
	}
}

func TestHandle_ClosesAfterMaxObjections(t *testing.T) {
	h := NewHandler(logging.Discard(), WithPicker(func(int) int { return 0 }))
	ctx := context.Background()
	octx := Context{FirstName: "Lee"}

	first, err := h.Handle(ctx, NotReady, octx, "lead-1")
	require.NoError(t, err)
	assert.False(t, first.MarkAsClosed)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, "reduce_pressure", first.Strategy)
	assert.True(t, strings.HasPrefix(first.ResponseText, "No rush at all, Lee."))

	second, err := h.Handle(ctx, Price, octx, "lead-1")
	require.NoError(t, err)
	assert.False(t, second.MarkAsClosed)

	third, err := h.Handle(ctx, Timing, octx, "lead-1")
	require.NoError(t, err)
	assert.True(t, third.MarkAsClosed)
	assert.Equal(t, 3, third.Count)
	assert.Equal(t, "I'll hold off for now, Lee. Reach out whenever it works for you.", third.ResponseText)

	other, err := h.Handle(ctx, Timing, Context{}, "lead-2")
	require.NoError(t, err)
	assert.False(t, other.MarkAsClosed, "counts are per lead")
	assert.Equal(t, "No problem! When would be a better time to reconnect?", other.ResponseText)
}

func TestHandle_UnknownType(t *testing.T) {
	h := NewHandler(logging.Discard())
	_, err := h.Handle(context.Background(), Type("weather"), Context{}, "lead-1")
	assert.ErrorIs(t, err, ErrUnknownObjection)
	assert.Zero(t, h.Count("lead-1"))
}

func TestHandle_NoPlaceholdersLeft(t *testing.T) {
	h := NewHandler(logging.Discard(), WithMaxObjections(100))
	for typ, s := range scripts {
		for i := range s.responses {
			h.pick = func(int) int { return i }
			res, err := h.Handle(context.Background(), typ, Context{}, "lead")
			require.NoError(t, err)
			assert.NotContains(t, res.ResponseText, "{")
		}
	}
	h.Reset("lead")
	assert.Zero(t, h.Count("lead"))
}
