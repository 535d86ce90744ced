package compliance

import (
	"testing"
	"time"
)

func TestQuietHoursSuppressOvernightWindow(t *testing.T) {
	q, err := ParseQuietHours("21:00", "07:30", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tests := []struct {
		ts      string
		want    bool
		purpose Purpose
	}{
		{"2024-10-05T22:00:00Z", true, PurposeOutreach},
		{"2024-10-05T06:59:00Z", true, PurposeOutreach},
		{"2024-10-05T08:00:00Z", false, PurposeOutreach},
		{"2024-10-05T22:00:00Z", false, PurposeReply},
	}
	for _, tc := range tests {
		ts, _ := time.Parse(time.RFC3339, tc.ts)
		if got := q.Suppress(ts, tc.purpose); got != tc.want {
			t.Fatalf("Suppress(%s,%s)=%v want %v", tc.ts, tc.purpose, got, tc.want)
		}
	}
}

func TestQuietHoursSuppressSimpleWindow(t *testing.T) {
	q, err := ParseQuietHours("22:00", "23:00", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ts, _ := time.Parse(time.RFC3339, "2024-10-05T22:30:00Z")
	if !q.Suppress(ts, PurposeOutreach) {
		t.Fatalf("expected suppression")
	}
	ts, _ = time.Parse(time.RFC3339, "2024-10-05T21:30:00Z")
	if q.Suppress(ts, PurposeOutreach) {
		t.Fatalf("expected no suppression")
	}
}

func TestParseQuietHoursValidationErrors(t *testing.T) {
	if _, err := ParseQuietHours("", "07:00", "UTC"); err == nil {
		t.Fatalf("expected error for empty start clock")
	}
	if _, err := ParseQuietHours("07:00", "08:00", "Mars/Phobos"); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
	if _, err := ParseQuietHours("bad", "08:00", "UTC"); err == nil {
		t.Fatalf("expected error for malformed start time")
	}
	q, err := ParseQuietHours("", "", "")
	if err != nil || q.Enabled() {
		t.Fatalf("empty window should parse as disabled, got %v %v", q.Enabled(), err)
	}
}

func TestQuietHoursNextAllowed(t *testing.T) {
	q, err := ParseQuietHours("21:00", "08:00", "UTC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	loc := time.UTC

	late := time.Date(2024, 10, 5, 22, 15, 0, 0, loc)
	want := time.Date(2024, 10, 6, 8, 0, 0, 0, loc)
	if got := q.NextAllowed(late); !got.Equal(want) {
		t.Fatalf("NextAllowed(late)=%v want %v", got, want)
	}

	early := time.Date(2024, 10, 6, 6, 0, 0, 0, loc)
	if got := q.NextAllowed(early); !got.Equal(want) {
		t.Fatalf("NextAllowed(early)=%v want %v", got, want)
	}

	noon := time.Date(2024, 10, 6, 12, 0, 0, 0, loc)
	if got := q.NextAllowed(noon); !got.Equal(noon) {
		t.Fatalf("NextAllowed(noon)=%v want unchanged", got)
	}
}

func TestQuietHoursDisabled(t *testing.T) {
	var q QuietHours
	now := time.Now()
	if q.Suppress(now, PurposeOutreach) {
		t.Fatalf("zero quiet hours should be disabled")
	}
	if !q.NextAllowed(now).Equal(now) {
		t.Fatalf("disabled window should not delay")
	}
}
