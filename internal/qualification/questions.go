package qualification

// Question is an immutable catalog entry.
type Question struct {
	ID        string
	Category  Category
	Priority  Priority
	Variants  []string
	FollowUps []string
	DataKey   string
	ValueType string
	DependsOn string
	SkipIf    string
}

// Catalog is an immutable, ordered set of questions.
type Catalog struct {
	questions []Question
	byID      map[string]int
}

func NewCatalog(questions []Question) *Catalog {
	c := &Catalog{
		questions: make([]Question, len(questions)),
		byID:      make(map[string]int, len(questions)),
	}
	copy(c.questions, questions)
	for i, q := range c.questions {
		c.byID[q.ID] = i
	}
	return c
}

// Get looks up a question by ID.
func (c *Catalog) Get(id string) (Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Question{}, false
	}
	return c.questions[i], true
}

// Questions returns the catalog in definition order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

var defaultCatalog = NewCatalog([]Question{
	{
		ID:       "timeline_main",
		Category: CategoryTimeline,
		Priority: PriorityCritical,
		Variants: []string{
			"When are you hoping to make a move?",
			"What kind of timeline are you working with?",
			"Are you looking to move in the next few months, or is this more of a longer-term plan?",
		},
		FollowUps: []string{
			"No pressure at all, but do you have a rough idea on timing? Even a ballpark helps.",
			"Just so I can send the right listings, would you say sooner or later this year?",
		},
		DataKey:   KeyTimeline,
		ValueType: "category",
	},
	{
		ID:       "budget_main",
		Category: CategoryBudget,
		Priority: PriorityCritical,
		Variants: []string{
			"What price range feels comfortable for you?",
			"Do you have a budget in mind for your next home?",
			"Roughly what price range should I be searching in?",
		},
		FollowUps: []string{
			"Totally fine if it's flexible. What's a ballpark number you'd like to stay under?",
		},
		DataKey:   KeyBudget,
		ValueType: "money",
	},
	{
		ID:       "location_main",
		Category: CategoryLocation,
		Priority: PriorityCritical,
		Variants: []string{
			"Which areas or neighborhoods are you most interested in?",
			"Where are you hoping to live? Any specific neighborhoods or cities?",
			"Is there a particular area you have your eye on?",
		},
		FollowUps: []string{
			"Any towns or zip codes at the top of your list?",
		},
		DataKey:   KeyLocations,
		ValueType: "list",
	},
	{
		ID:       "preapproval_main",
		Category: CategoryPreApproval,
		Priority: PriorityHigh,
		Variants: []string{
			"Have you had a chance to get pre-approved with a lender yet?",
			"Are you already pre-approved, or would it help if I connected you with a great lender?",
		},
		FollowUps: []string{
			"Quick one: are you working with a lender yet, or planning to pay cash?",
		},
		DataKey:   KeyPreApproval,
		ValueType: "bool",
		DependsOn: KeyBudget,
		SkipIf:    KeyCashBuyer,
	},
	{
		ID:       "motivation_main",
		Category: CategoryMotivation,
		Priority: PriorityHigh,
		Variants: []string{
			"What's prompting the move?",
			"What has you thinking about a new place?",
			"Is there something specific driving the move, like work or family?",
		},
		DataKey:   KeyMotivation,
		ValueType: "category",
	},
	{
		ID:       "property_type_main",
		Category: CategoryPropertyType,
		Priority: PriorityMedium,
		Variants: []string{
			"Are you thinking single-family home, townhouse, or condo?",
			"What type of home fits best: house, townhome, or condo?",
		},
		DataKey:   KeyPropertyTypes,
		ValueType: "list",
	},
	{
		ID:       "current_situation_main",
		Category: CategoryCurrentSituation,
		Priority: PriorityMedium,
		Variants: []string{
			"Are you renting right now, or do you own your current place?",
			"Do you have a home to sell before you buy, or are you renting?",
		},
		DataKey:   KeyCurrentSituation,
		ValueType: "category",
	},
	{
		ID:       "bedrooms_main",
		Category: CategoryBedrooms,
		Priority: PriorityLow,
		Variants: []string{
			"How many bedrooms do you need?",
			"What's the minimum number of bedrooms that would work?",
		},
		DataKey:   KeyBedrooms,
		ValueType: "int",
		DependsOn: KeyLocations,
	},
	{
		ID:       "decision_makers_main",
		Category: CategoryDecisionMakers,
		Priority: PriorityLow,
		Variants: []string{
			"Will anyone else be part of the decision, like a partner or family member?",
			"Is it just you making the decision, or someone else too?",
		},
		DataKey:   KeyDecisionMakers,
		ValueType: "category",
	},
	{
		ID:       "must_haves_main",
		Category: CategoryMustHaves,
		Priority: PriorityLow,
		Variants: []string{
			"Any must-haves for the new place, like a yard, garage, or home office?",
			"What's at the top of your wish list for the next home?",
		},
		DataKey:   KeyMustHaves,
		ValueType: "list",
		DependsOn: KeyPropertyTypes,
	},
})

// DefaultCatalog returns the built-in question catalog.
func DefaultCatalog() *Catalog { return defaultCatalog }
