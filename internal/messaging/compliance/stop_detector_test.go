package compliance

import "testing"

func TestDetectorStop(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		body string
		want bool
	}{
		{"STOP", true},
		{" Stop ", true},
		{"unsubscribe me", true},
		{"Please stopall now", true},
		{"quit.", true},
		{"opt out", true},
		{"Stop texting me!", true},
		{"please stop now.", true},
		{"don't stop sending listings", false},
		{"stop texting me and email me instead", false},
		{"Cancel my showing on Friday", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := d.IsStop(tc.body); got != tc.want {
			t.Fatalf("IsStop(%q)=%v want %v", tc.body, got, tc.want)
		}
	}
}

func TestDetectorClassify(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		body string
		want Keyword
	}{
		{"STOP", KeywordStop},
		{"start", KeywordStart},
		{"UNSTOP!", KeywordStart},
		{"start sending me homes in Austin", KeywordNone},
		{"HELP", KeywordHelp},
		{"info?", KeywordHelp},
		{"help me find a condo", KeywordNone},
		{"what's the HOA fee?", KeywordNone},
	}
	for _, tc := range cases {
		if got := d.Classify(tc.body); got != tc.want {
			t.Fatalf("Classify(%q)=%q want %q", tc.body, got, tc.want)
		}
	}
}

func TestDetectorNilSafe(t *testing.T) {
	var d *Detector
	if d.IsStop("STOP") || d.IsHelp("HELP") || d.IsStart("START") {
		t.Fatalf("nil detector should never match")
	}
}
