package compliance

import (
	"fmt"
	"time"
)

// Purpose distinguishes conversational replies from proactive outreach.
type Purpose string

const (
	// PurposeReply answers a message the lead just sent.
	PurposeReply Purpose = "reply"
	// PurposeOutreach is agent-initiated (first contact, nurture, follow-up).
	PurposeOutreach Purpose = "outreach"
)

// QuietHours is a daily local-time window in which outreach is held back.
type QuietHours struct {
	StartMinutes int
	EndMinutes   int
	location     *time.Location
	enabled      bool
}

// ParseQuietHours builds a window from HH:MM strings. Empty start and end
// disable the window.
func ParseQuietHours(start, end, tz string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return QuietHours{}, fmt.Errorf("compliance: load quiet hours tz: %w", err)
		}
	}
	startMin, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: parse quiet hours start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: parse quiet hours end: %w", err)
	}
	return QuietHours{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      true,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (q QuietHours) Enabled() bool { return q.enabled && q.StartMinutes != q.EndMinutes }

// Suppress reports whether an outreach send at now falls inside the window.
// Replies are never suppressed.
func (q QuietHours) Suppress(now time.Time, purpose Purpose) bool {
	if !q.Enabled() || purpose != PurposeOutreach {
		return false
	}
	return q.inWindow(q.minutesOf(now))
}

func (q QuietHours) minutesOf(now time.Time) int {
	local := now.In(q.location)
	return local.Hour()*60 + local.Minute()
}

func (q QuietHours) inWindow(minutes int) bool {
	if q.StartMinutes < q.EndMinutes {
		return minutes >= q.StartMinutes && minutes < q.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= q.StartMinutes || minutes < q.EndMinutes
}

// NextAllowed returns now when outside the window, otherwise the moment the
// window ends. Delayed senders use it to park outreach instead of dropping it.
func (q QuietHours) NextAllowed(now time.Time) time.Time {
	if !q.Enabled() || !q.inWindow(q.minutesOf(now)) {
		return now
	}
	local := now.In(q.location)
	end := time.Date(local.Year(), local.Month(), local.Day(), q.EndMinutes/60, q.EndMinutes%60, 0, 0, q.location)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
