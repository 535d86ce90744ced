package qualification

import "math"

const maxScore = 100

var timelinePoints = map[string]int{
	TimelineImmediate: 25,
	TimelineShort:     20,
	TimelineMedium:    12,
	TimelineLong:      5,
	TimelineUnknown:   3,
}

var urgentMotivations = map[string]bool{
	"job":      true,
	"family":   true,
	"downsize": true,
}

// Score applies the fixed qualification rubric. Focused location searches
// score higher than broad ones.
func Score(d Data) int {
	score := timelinePoints[d.Timeline]

	switch {
	case d.IsPreApproved:
		score += 25
	case d.Budget > 0:
		score += 20
	case d.BudgetRangeLow > 0:
		score += 15
	}

	switch n := len(d.LocationPreferences); {
	case n == 1:
		score += 20
	case n >= 2 && n <= 3:
		score += 15
	case n >= 4:
		score += 10
	}

	if len(d.PropertyTypes) > 0 {
		score += 10
	}
	if d.Motivation != "" {
		if urgentMotivations[d.Motivation] {
			score += 10
		} else {
			score += 7
		}
	}
	if d.CurrentSituation != "" {
		score += 5
	}
	if d.DecisionMakers != "" {
		score += 5
	}

	if score > maxScore {
		return maxScore
	}
	return score
}

// Progress is a derived snapshot of which categories are complete.
type Progress struct {
	CompletedCritical    int        `json:"completed_critical"`
	TotalCritical        int        `json:"total_critical"`
	CompletedHigh        int        `json:"completed_high"`
	TotalHigh            int        `json:"total_high"`
	CompletedMedium      int        `json:"completed_medium"`
	TotalMedium          int        `json:"total_medium"`
	CompletedLow         int        `json:"completed_low"`
	TotalLow             int        `json:"total_low"`
	CompletedCategories  []Category `json:"completed_categories"`
	MissingCategories    []Category `json:"missing_categories"`
	OverallPercentage    float64    `json:"overall_percentage"`
	QuestionsAsked       int        `json:"questions_asked"`
	IsMinimallyQualified bool       `json:"is_minimally_qualified"`
	IsFullyQualified     bool       `json:"is_fully_qualified"`
}

// IsMinimallyQualified requires a timeline, some budget signal and at least
// one location.
func IsMinimallyQualified(d Data) bool {
	hasBudget := d.Budget > 0 || d.BudgetRangeLow > 0 || d.IsPreApproved
	return d.Timeline != "" && hasBudget && len(d.LocationPreferences) > 0
}

// ComputeProgress derives a Progress from d.
func ComputeProgress(d Data) Progress {
	p := Progress{QuestionsAsked: len(d.QuestionsAsked)}
	completed := 0
	for _, cat := range categoryOrder {
		done := d.Has(categoryKeys[cat])
		if done {
			completed++
			p.CompletedCategories = append(p.CompletedCategories, cat)
		} else {
			p.MissingCategories = append(p.MissingCategories, cat)
		}
		inc := 0
		if done {
			inc = 1
		}
		switch categoryPriority[cat] {
		case PriorityCritical:
			p.TotalCritical++
			p.CompletedCritical += inc
		case PriorityHigh:
			p.TotalHigh++
			p.CompletedHigh += inc
		case PriorityMedium:
			p.TotalMedium++
			p.CompletedMedium += inc
		case PriorityLow:
			p.TotalLow++
			p.CompletedLow += inc
		}
	}
	p.OverallPercentage = math.Round(float64(completed)/float64(len(categoryOrder))*1000) / 10
	p.IsMinimallyQualified = IsMinimallyQualified(d)
	p.IsFullyQualified = p.CompletedCritical == p.TotalCritical && p.CompletedHigh == p.TotalHigh
	return p
}
