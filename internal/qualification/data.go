package qualification

import (
	"strings"
	"time"
)

// Priority orders question categories; lower values are asked first.
type Priority int

const (
	PriorityCritical Priority = iota + 1
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Category is a qualification topic.
type Category string

const (
	CategoryTimeline         Category = "timeline"
	CategoryBudget           Category = "budget"
	CategoryLocation         Category = "location"
	CategoryPreApproval      Category = "pre_approval"
	CategoryMotivation       Category = "motivation"
	CategoryPropertyType     Category = "property_type"
	CategoryCurrentSituation Category = "current_situation"
	CategoryBedrooms         Category = "bedrooms"
	CategoryDecisionMakers   Category = "decision_makers"
	CategoryMustHaves        Category = "must_haves"
)

// categoryOrder is the canonical tie-break order for question selection.
var categoryOrder = []Category{
	CategoryTimeline,
	CategoryBudget,
	CategoryLocation,
	CategoryPreApproval,
	CategoryMotivation,
	CategoryPropertyType,
	CategoryCurrentSituation,
	CategoryBedrooms,
	CategoryDecisionMakers,
	CategoryMustHaves,
}

var categoryPriority = map[Category]Priority{
	CategoryTimeline:         PriorityCritical,
	CategoryBudget:           PriorityCritical,
	CategoryLocation:         PriorityCritical,
	CategoryPreApproval:      PriorityHigh,
	CategoryMotivation:       PriorityHigh,
	CategoryPropertyType:     PriorityMedium,
	CategoryCurrentSituation: PriorityMedium,
	CategoryBedrooms:         PriorityLow,
	CategoryDecisionMakers:   PriorityLow,
	CategoryMustHaves:        PriorityLow,
}

// categoryKeys maps each category to the data key that completes it.
var categoryKeys = map[Category]string{
	CategoryTimeline:         KeyTimeline,
	CategoryBudget:           KeyBudget,
	CategoryLocation:         KeyLocations,
	CategoryPreApproval:      KeyPreApproval,
	CategoryMotivation:       KeyMotivation,
	CategoryPropertyType:     KeyPropertyTypes,
	CategoryCurrentSituation: KeyCurrentSituation,
	CategoryBedrooms:         KeyBedrooms,
	CategoryDecisionMakers:   KeyDecisionMakers,
	CategoryMustHaves:        KeyMustHaves,
}

func categoryIndex(c Category) int {
	for i, cat := range categoryOrder {
		if cat == c {
			return i
		}
	}
	return len(categoryOrder)
}

// Data keys referenced by questions (DataKey, DependsOn, SkipIf).
const (
	KeyTimeline         = "timeline"
	KeyBudget           = "budget"
	KeyLocations        = "location_preferences"
	KeyPreApproval      = "pre_approval"
	KeyCashBuyer        = "cash_buyer"
	KeyMotivation       = "motivation"
	KeyPropertyTypes    = "property_types"
	KeyCurrentSituation = "current_situation"
	KeyBedrooms         = "bedrooms_min"
	KeyDecisionMakers   = "decision_makers"
	KeyMustHaves        = "must_haves"
)

// Timeline values.
const (
	TimelineImmediate = "immediate"
	TimelineShort     = "short"
	TimelineMedium    = "medium"
	TimelineLong      = "long"
	TimelineUnknown   = "unknown"
)

// Pre-approval states.
const (
	PreApprovalApproved    = "approved"
	PreApprovalNotApproved = "not_approved"
	PreApprovalCash        = "cash"
)

// Data is the per-lead qualification record. Location and property type
// lists only grow; QuestionsAsked is append-only.
type Data struct {
	Timeline            string    `json:"timeline,omitempty"`
	Budget              int       `json:"budget,omitempty"`
	BudgetRangeLow      int       `json:"budget_range_low,omitempty"`
	BudgetRangeHigh     int       `json:"budget_range_high,omitempty"`
	IsPreApproved       bool      `json:"is_pre_approved"`
	PreApprovalStatus   string    `json:"pre_approval_status,omitempty"`
	PreApprovalAmount   int       `json:"pre_approval_amount,omitempty"`
	LocationPreferences []string  `json:"location_preferences,omitempty"`
	PropertyTypes       []string  `json:"property_types,omitempty"`
	Motivation          string    `json:"motivation,omitempty"`
	CurrentSituation    string    `json:"current_situation,omitempty"`
	DecisionMakers      string    `json:"decision_makers,omitempty"`
	MustHaves           []string  `json:"must_haves,omitempty"`
	DealBreakers        []string  `json:"deal_breakers,omitempty"`
	BedroomsMin         int       `json:"bedrooms_min,omitempty"`
	BathroomsMin        float64   `json:"bathrooms_min,omitempty"`
	QuestionsAsked      []string  `json:"questions_asked"`
	QualificationScore  int       `json:"qualification_score"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Has reports whether the given data key holds a value.
func (d *Data) Has(key string) bool {
	switch key {
	case KeyTimeline:
		return d.Timeline != ""
	case KeyBudget:
		return d.Budget > 0 || d.BudgetRangeLow > 0
	case KeyLocations:
		return len(d.LocationPreferences) > 0
	case KeyPreApproval:
		return d.PreApprovalStatus != "" || d.IsPreApproved
	case KeyCashBuyer:
		return d.PreApprovalStatus == PreApprovalCash
	case KeyMotivation:
		return d.Motivation != ""
	case KeyPropertyTypes:
		return len(d.PropertyTypes) > 0
	case KeyCurrentSituation:
		return d.CurrentSituation != ""
	case KeyBedrooms:
		return d.BedroomsMin > 0
	case KeyDecisionMakers:
		return d.DecisionMakers != ""
	case KeyMustHaves:
		return len(d.MustHaves) > 0
	default:
		return false
	}
}

// Clone returns a deep copy.
func (d Data) Clone() Data {
	out := d
	out.LocationPreferences = cloneStrings(d.LocationPreferences)
	out.PropertyTypes = cloneStrings(d.PropertyTypes)
	out.MustHaves = cloneStrings(d.MustHaves)
	out.DealBreakers = cloneStrings(d.DealBreakers)
	out.QuestionsAsked = cloneStrings(d.QuestionsAsked)
	return out
}

// ToMap flattens the populated fields for prompts and CRM sync.
func (d Data) ToMap() map[string]any {
	m := map[string]any{
		"is_pre_approved":     d.IsPreApproved,
		"qualification_score": d.QualificationScore,
		"questions_asked":     len(d.QuestionsAsked),
	}
	setString := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	setInt := func(k string, v int) {
		if v > 0 {
			m[k] = v
		}
	}
	setList := func(k string, v []string) {
		if len(v) > 0 {
			m[k] = strings.Join(v, ", ")
		}
	}
	setString("timeline", d.Timeline)
	setInt("budget", d.Budget)
	setInt("budget_range_low", d.BudgetRangeLow)
	setInt("budget_range_high", d.BudgetRangeHigh)
	setString("pre_approval_status", d.PreApprovalStatus)
	setInt("pre_approval_amount", d.PreApprovalAmount)
	setList("location_preferences", d.LocationPreferences)
	setList("property_types", d.PropertyTypes)
	setString("motivation", d.Motivation)
	setString("current_situation", d.CurrentSituation)
	setString("decision_makers", d.DecisionMakers)
	setList("must_haves", d.MustHaves)
	setList("deal_breakers", d.DealBreakers)
	setInt("bedrooms_min", d.BedroomsMin)
	if d.BathroomsMin > 0 {
		m["bathrooms_min"] = d.BathroomsMin
	}
	return m
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// appendUnique appends v unless an equal value (case-insensitive) exists.
func appendUnique(list []string, v string) ([]string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return list, false
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list, false
		}
	}
	return append(list, v), true
}
