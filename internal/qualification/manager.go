package qualification

import (
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/realty-ai-agent/internal/intent"
)

const (
	DefaultMaxQuestions    = 10
	minQuestionsBeforeStop = 3
)

// Manager accumulates qualification facts for one lead and picks the next
// question. It is not safe for concurrent use; callers serialize access per
// lead.
type Manager struct {
	leadID       string
	data         Data
	catalog      *Catalog
	maxQuestions int
	pick         func(n int) int
	now          func() time.Time
}

type ManagerOption func(*Manager)

func WithMaxQuestions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxQuestions = n
		}
	}
}

func WithCatalog(c *Catalog) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithPicker overrides the variant picker; pick(n) must return [0, n).
func WithPicker(pick func(n int) int) ManagerOption {
	return func(m *Manager) {
		if pick != nil {
			m.pick = pick
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(leadID string, opts ...ManagerOption) *Manager {
	return NewManagerFrom(leadID, Data{}, opts...)
}

// NewManagerFrom resumes a manager from previously persisted data.
func NewManagerFrom(leadID string, data Data, opts ...ManagerOption) *Manager {
	m := &Manager{
		leadID:       leadID,
		data:         data.Clone(),
		catalog:      DefaultCatalog(),
		maxQuestions: DefaultMaxQuestions,
		pick:         rand.IntN,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.data.QualificationScore = Score(m.data)
	return m
}

func (m *Manager) LeadID() string { return m.leadID }

// Snapshot returns a deep copy of the current data.
func (m *Manager) Snapshot() Data { return m.data.Clone() }

// Reset clears all collected data.
func (m *Manager) Reset() {
	m.data = Data{}
}

// Progress recomputes the progress snapshot.
func (m *Manager) Progress() Progress { return ComputeProgress(m.data) }

var timelineByIntent = map[intent.Intent]string{
	intent.TimelineImmediate: TimelineImmediate,
	intent.TimelineShort:     TimelineShort,
	intent.TimelineMedium:    TimelineMedium,
	intent.TimelineLong:      TimelineLong,
	intent.TimelineUnknown:   TimelineUnknown,
}

var motivationByIntent = map[intent.Intent]string{
	intent.MotivationJob:       "job",
	intent.MotivationFamily:    "family",
	intent.MotivationDownsize:  "downsize",
	intent.MotivationUpsize:    "upsize",
	intent.MotivationInvest:    "investment",
	intent.MotivationFirstHome: "first_home",
}

var (
	rentingRE      = regexp.MustCompile(`(?i)\b(renting|(we|i) rent|our lease|my lease|apartment lease)\b`)
	owningRE       = regexp.MustCompile(`(?i)\b((we|i) own|homeowners?|sell (our|my) (current )?(house|home|place))\b`)
	withFamilyRE   = regexp.MustCompile(`(?i)\bliving with (my |our )?(parents|family|in-laws)\b`)
	partnerRE      = regexp.MustCompile(`(?i)\b(my|our)\s+(wife|husband|partner|spouse|fianc[ée]e?)\b`)
	soloDecisionRE = regexp.MustCompile(`(?i)\b(just me|only me|i'?m (the only one|buying alone|deciding))\b`)
)

// UpdateFromIntent applies intent-driven then entity-driven updates and
// recomputes the score. It returns the fields that changed.
func (m *Manager) UpdateFromIntent(intentName string, entities []intent.ExtractedEntity, rawMessage string) map[string]any {
	updated := make(map[string]any)
	d := &m.data

	name, _ := intent.Parse(intentName)
	if tl, ok := timelineByIntent[name]; ok {
		if tl != TimelineUnknown || d.Timeline == "" {
			d.Timeline = tl
			updated["timeline"] = tl
		}
	}
	if mot, ok := motivationByIntent[name]; ok {
		d.Motivation = mot
		updated["motivation"] = mot
	}
	switch name {
	case intent.BudgetPreapproved:
		d.IsPreApproved = true
		d.PreApprovalStatus = PreApprovalApproved
		updated["is_pre_approved"] = true
	case intent.BudgetNotPreapproved:
		d.IsPreApproved = false
		d.PreApprovalStatus = PreApprovalNotApproved
		updated["is_pre_approved"] = false
	case intent.BudgetCash:
		d.PreApprovalStatus = PreApprovalCash
		updated["pre_approval_status"] = PreApprovalCash
	}

	hasRange := false
	for _, e := range entities {
		if e.Type == intent.EntityBudgetRange {
			hasRange = true
		}
	}
	for _, e := range entities {
		switch e.Type {
		case intent.EntityBudget:
			// A range in the same message already covers both endpoints.
			if hasRange {
				continue
			}
			if v, ok := toInt(e.Value); ok {
				d.Budget = v
				updated["budget"] = v
				if name == intent.BudgetPreapproved {
					d.PreApprovalAmount = v
					updated["pre_approval_amount"] = v
				}
			}
		case intent.EntityBudgetRange:
			if r, ok := toRange(e.Value); ok {
				d.BudgetRangeLow, d.BudgetRangeHigh = r.Low, r.High
				updated["budget_range_low"] = r.Low
				updated["budget_range_high"] = r.High
			}
		case intent.EntityLocation:
			if s, ok := e.Value.(string); ok {
				var added bool
				if d.LocationPreferences, added = appendUnique(d.LocationPreferences, s); added {
					updated["location_preferences"] = cloneStrings(d.LocationPreferences)
				}
			}
		case intent.EntityPropertyType:
			if s, ok := e.Value.(string); ok {
				var added bool
				if d.PropertyTypes, added = appendUnique(d.PropertyTypes, s); added {
					updated["property_types"] = cloneStrings(d.PropertyTypes)
				}
			}
		case intent.EntityBedrooms:
			if v, ok := toInt(e.Value); ok && v > 0 {
				d.BedroomsMin = v
				updated["bedrooms_min"] = v
			}
		}
	}

	m.applyMessageHeuristics(rawMessage, updated)
	m.finishUpdate(updated)
	return updated
}

func (m *Manager) applyMessageHeuristics(raw string, updated map[string]any) {
	if raw == "" {
		return
	}
	d := &m.data
	if d.CurrentSituation == "" {
		switch {
		case withFamilyRE.MatchString(raw):
			d.CurrentSituation = "living_with_family"
		case rentingRE.MatchString(raw):
			d.CurrentSituation = "renting"
		case owningRE.MatchString(raw):
			d.CurrentSituation = "owns_home"
		}
		if d.CurrentSituation != "" {
			updated["current_situation"] = d.CurrentSituation
		}
	}
	if d.DecisionMakers == "" {
		if mm := partnerRE.FindStringSubmatch(raw); mm != nil {
			d.DecisionMakers = "with_" + strings.ToLower(mm[2])
		} else if soloDecisionRE.MatchString(raw) {
			d.DecisionMakers = "self"
		}
		if d.DecisionMakers != "" {
			updated["decision_makers"] = d.DecisionMakers
		}
	}
}

func (m *Manager) finishUpdate(updated map[string]any) {
	if len(updated) > 0 {
		m.data.UpdatedAt = m.now()
	}
	m.data.QualificationScore = Score(m.data)
}

// MergeExtractedInfo folds structured facts proposed by the response
// generator into the record. Unknown keys are ignored.
func (m *Manager) MergeExtractedInfo(info map[string]any) map[string]any {
	updated := make(map[string]any)
	d := &m.data
	for key, raw := range info {
		switch key {
		case "timeline":
			if s, ok := raw.(string); ok {
				if tl := normalizeTimeline(s); tl != "" {
					d.Timeline = tl
					updated["timeline"] = tl
				}
			}
		case "budget":
			if v, ok := toInt(raw); ok && v > 0 {
				d.Budget = v
				updated["budget"] = v
			}
		case "budget_range_low":
			if v, ok := toInt(raw); ok && v > 0 {
				d.BudgetRangeLow = v
				updated[key] = v
			}
		case "budget_range_high":
			if v, ok := toInt(raw); ok && v > 0 {
				d.BudgetRangeHigh = v
				updated[key] = v
			}
		case "pre_approved", "is_pre_approved":
			if b, ok := raw.(bool); ok {
				d.IsPreApproved = b
				if b {
					d.PreApprovalStatus = PreApprovalApproved
				} else if d.PreApprovalStatus == "" {
					d.PreApprovalStatus = PreApprovalNotApproved
				}
				updated["is_pre_approved"] = b
			}
		case "location", "locations", "location_preferences":
			for _, s := range toStrings(raw) {
				var added bool
				if d.LocationPreferences, added = appendUnique(d.LocationPreferences, s); added {
					updated["location_preferences"] = cloneStrings(d.LocationPreferences)
				}
			}
		case "property_type", "property_types":
			for _, s := range toStrings(raw) {
				var added bool
				if d.PropertyTypes, added = appendUnique(d.PropertyTypes, s); added {
					updated["property_types"] = cloneStrings(d.PropertyTypes)
				}
			}
		case "must_haves":
			for _, s := range toStrings(raw) {
				var added bool
				if d.MustHaves, added = appendUnique(d.MustHaves, s); added {
					updated["must_haves"] = cloneStrings(d.MustHaves)
				}
			}
		case "deal_breakers":
			for _, s := range toStrings(raw) {
				var added bool
				if d.DealBreakers, added = appendUnique(d.DealBreakers, s); added {
					updated["deal_breakers"] = cloneStrings(d.DealBreakers)
				}
			}
		case "motivation", "current_situation", "decision_makers":
			s, ok := raw.(string)
			s = strings.TrimSpace(s)
			if !ok || s == "" {
				continue
			}
			switch key {
			case "motivation":
				d.Motivation = strings.ToLower(s)
			case "current_situation":
				d.CurrentSituation = s
			case "decision_makers":
				d.DecisionMakers = s
			}
			updated[key] = s
		case "bedrooms", "bedrooms_min":
			if v, ok := toInt(raw); ok && v > 0 {
				d.BedroomsMin = v
				updated["bedrooms_min"] = v
			}
		}
	}
	m.finishUpdate(updated)
	return updated
}

func normalizeTimeline(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := timelinePoints[s]; ok {
		return s
	}
	switch {
	case strings.Contains(s, "asap"), strings.Contains(s, "immediate"), strings.Contains(s, "now"):
		return TimelineImmediate
	case strings.Contains(s, "year"):
		return TimelineLong
	case strings.Contains(s, "month"):
		return TimelineShort
	}
	return ""
}

// MarkAsked appends id to the asked list.
func (m *Manager) MarkAsked(id string) {
	m.data.QuestionsAsked = append(m.data.QuestionsAsked, id)
	m.data.UpdatedAt = m.now()
}

// QuestionContext personalizes question text.
type QuestionContext struct {
	FirstName string
}

// NextQuestion selects the next question to ask and records it as asked.
// It returns false once enough has been asked or the lead is minimally
// qualified after at least three questions.
func (m *Manager) NextQuestion(qctx *QuestionContext, avoid Category, maxAsked int) (Question, string, bool) {
	if maxAsked <= 0 {
		maxAsked = m.maxQuestions
	}
	asked := len(m.data.QuestionsAsked)
	if asked >= maxAsked {
		return Question{}, "", false
	}
	if IsMinimallyQualified(m.data) && asked >= minQuestionsBeforeStop {
		return Question{}, "", false
	}

	var candidates []Question
	for _, q := range m.catalog.questions {
		if m.data.Has(q.DataKey) {
			continue
		}
		if q.DependsOn != "" && !m.data.Has(q.DependsOn) {
			continue
		}
		if q.SkipIf != "" && m.data.Has(q.SkipIf) {
			continue
		}
		if avoid != "" && q.Category == avoid {
			continue
		}
		candidates = append(candidates, q)
	}
	if len(candidates) == 0 {
		return Question{}, "", false
	}

	if last, ok := m.lastAskedCategory(); ok && len(candidates) > 1 {
		var varied []Question
		for _, q := range candidates {
			if q.Category != last {
				varied = append(varied, q)
			}
		}
		if len(varied) > 0 {
			candidates = varied
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority < candidates[b].Priority
		}
		return categoryIndex(candidates[a].Category) < categoryIndex(candidates[b].Category)
	})
	q := candidates[0]

	variants := q.Variants
	if m.wasAsked(q.ID) && len(q.FollowUps) > 0 {
		variants = q.FollowUps
	}
	text := m.render(variants[m.pick(len(variants))], qctx)
	m.MarkAsked(q.ID)
	return q, text, true
}

func (m *Manager) render(text string, qctx *QuestionContext) string {
	name := "there"
	if qctx != nil && strings.TrimSpace(qctx.FirstName) != "" {
		name = strings.TrimSpace(qctx.FirstName)
	}
	return strings.ReplaceAll(text, "{first_name}", name)
}

func (m *Manager) wasAsked(id string) bool {
	for _, a := range m.data.QuestionsAsked {
		if a == id {
			return true
		}
	}
	return false
}

func (m *Manager) lastAskedCategory() (Category, bool) {
	if len(m.data.QuestionsAsked) == 0 {
		return "", false
	}
	q, ok := m.catalog.Get(m.data.QuestionsAsked[len(m.data.QuestionsAsked)-1])
	if !ok {
		return "", false
	}
	return q.Category, true
}

// ShouldContinueQualifying reports whether more questions are warranted.
func (m *Manager) ShouldContinueQualifying() bool {
	asked := len(m.data.QuestionsAsked)
	if asked >= m.maxQuestions {
		return false
	}
	p := ComputeProgress(m.data)
	if p.IsMinimallyQualified && asked >= minQuestionsBeforeStop {
		return false
	}
	if p.CompletedCritical < p.TotalCritical {
		return true
	}
	return p.CompletedHigh < p.TotalHigh
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n + 0.5), true
	case float32:
		return int(n + 0.5), true
	case string:
		i, err := strconv.Atoi(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(n), "$"), ",", ""))
		return i, err == nil
	}
	return 0, false
}

func toRange(v any) (intent.Range, bool) {
	switch r := v.(type) {
	case intent.Range:
		return r, r.Low > 0 && r.High > r.Low
	case *intent.Range:
		if r == nil {
			return intent.Range{}, false
		}
		return *r, r.Low > 0 && r.High > r.Low
	case map[string]any:
		low, okLow := toInt(r["low"])
		high, okHigh := toInt(r["high"])
		return intent.Range{Low: low, High: high}, okLow && okHigh && low > 0 && high > low
	}
	return intent.Range{}, false
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
