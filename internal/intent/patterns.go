package intent

import (
	"regexp"
	"sync"
)

// PatternMatch is one table row that matched a message.
type PatternMatch struct {
	Intent     Intent
	Confidence float64
	Match      string
	EntityHint string
}

type intentPattern struct {
	regex      *regexp.Regexp
	intent     Intent
	confidence float64
	entityHint string
}

// PatternMatcher applies a fixed, ordered regex table. It is immutable after
// construction and safe for concurrent use.
type PatternMatcher struct {
	patterns []intentPattern
}

var (
	defaultMatcherOnce sync.Once
	defaultMatcher     *PatternMatcher
)

// DefaultPatternMatcher returns the process-wide matcher, compiling the table
// on first use.
func DefaultPatternMatcher() *PatternMatcher {
	defaultMatcherOnce.Do(func() {
		defaultMatcher = NewPatternMatcher()
	})
	return defaultMatcher
}

func p(expr string, i Intent, confidence float64, hint string) intentPattern {
	return intentPattern{regex: regexp.MustCompile(`(?i)` + expr), intent: i, confidence: confidence, entityHint: hint}
}

// NewPatternMatcher compiles the intent table. Deferred follow-up rows sit
// ahead of the not-ready objection rows and carry higher confidence so the
// deferral reading wins consolidation.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{patterns: []intentPattern{
		// Opt-out and escalation
		p(`^\s*(stop|stopall|unsubscribe|cancel|end|quit|optout|opt out)\s*[.!]*\s*$`, OptOut, 0.95, ""),
		p(`\b(stop|quit|cease)\s+(texting|messaging|contacting|emailing|calling|sending)\b`, OptOut, 0.95, ""),
		p(`\b(unsubscribe|opt[\s-]?out|remove me|take me off|do not (text|contact|call)|don'?t (text|contact|message|call) me)\b`, OptOut, 0.9, ""),
		p(`\b(speak|talk|chat)\s+(to|with)\s+(a\s+|an\s+)?(real\s+|actual\s+|live\s+)?(person|human|agent|someone|realtor|manager|broker)\b`, EscalationRequest, 0.9, ""),
		p(`\b(real person|human being|are you a (bot|robot|real person|human)|is this a (bot|robot))\b`, EscalationRequest, 0.85, ""),
		p(`\b(annoying|annoyed|frustrat(ed|ing)|ridiculous|leave me alone|stop bothering|harass(ing|ment)?|how many times)\b`, Frustration, 0.85, ""),
		p(`\b(fuck\w*|shit\w*|damn|bitch\w*|asshole|bullshit|wtf|crap)\b`, Profanity, 0.9, ""),

		// Channel preference and reduction
		p(`\b(e-?mail)\s+(me|is better|works better|instead|only)\b`, ChannelPreferEmail, 0.85, "channel_preference"),
		p(`\b(prefer|rather)\s+(to\s+)?(get\s+|use\s+)?(an?\s+)?e-?mails?\b`, ChannelPreferEmail, 0.85, "channel_preference"),
		p(`\b(text|sms)\s+(is better|works better|instead|only)\b`, ChannelPreferSMS, 0.85, "channel_preference"),
		p(`\b(prefer|rather)\s+(to\s+)?(get\s+)?(a\s+)?(texts?|text messages?|sms)\b`, ChannelPreferSMS, 0.85, "channel_preference"),
		p(`\b(give me a call|prefer (a\s+)?(phone\s+)?call|rather (talk|speak) on the phone|call me instead)\b`, ChannelPreferCall, 0.85, "channel_preference"),
		p(`\b(less|fewer|not so many|too many)\s+(texts|messages|emails|calls)\b`, ChannelReduction, 0.85, "channel_reduction"),
		p(`\b(only|just)\s+(text|email|contact|message|reach out to)\s+(me\s+)?(once|when|if)\b`, ChannelReduction, 0.85, "channel_reduction"),
		p(`\b(once a (week|month)|weekly|monthly)\s+(is|would be)\s+(fine|enough|plenty|better)\b`, ChannelReduction, 0.8, "channel_reduction"),

		// Deferred follow-up, ahead of not-ready
		p(`\b(call|text|contact|email|message|ping|hit) me\s+(back\s+)?(again\s+)?(in|next|after|around)\b`, DeferredFollowup, 0.9, "deferred_date"),
		p(`\b(reach out|check back|follow up|circle back|touch base|try me|check in)\s+(again\s+|with me\s+)?(in|next|after|around)\b`, DeferredFollowup, 0.88, "deferred_date"),
		p(`\b(after|once)\s+the\s+(holidays|new year)\b`, DeferredFollowup, 0.85, "deferred_date"),
		p(`\bmaybe\s+(in|next)\s+(a\s+)?(few\s+|couple\s+(of\s+)?|\d+\s+)?(weeks?|months?|year)\b`, DeferredFollowup, 0.85, "deferred_date"),

		// Not ready and other objections
		p(`\bnot\s+(quite\s+|really\s+)?ready\b`, ObjectionNotReady, 0.85, ""),
		p(`\bnot\s+(right\s+)?now\b`, ObjectionNotReady, 0.8, ""),
		p(`\b(no|not in a)\s+(rush|hurry)\b`, ObjectionNotReady, 0.75, ""),
		p(`\b(already (have|got|working with|signed with|using) (an?\s+|my\s+)?(agent|realtor|broker)|working with (another|someone else|a realtor|an agent)|my (agent|realtor) (is|will))\b`, ObjectionOtherAgent, 0.85, ""),
		p(`\b(too (expensive|pricey)|can'?t afford|out of (my|our) (price range|budget)|prices are (crazy|too high|insane|ridiculous)|overpriced)\b`, ObjectionPrice, 0.8, ""),
		p(`\b(bad time|not a good time|busy right now|timing is(n'?t| not) (right|great|good))\b`, ObjectionTiming, 0.75, ""),
		p(`\b(not interested|no longer interested|changed (my|our) minds?|decided not to|don'?t want to (buy|move|sell))\b`, NegativeInterest, 0.85, ""),
		p(`\b(just (browsing|looking|curious|checking)|window shopping)\b`, JustBrowsing, 0.8, ""),

		// Timeline
		p(`\b(asap|as soon as possible|right away|immediately|this month|ready to (buy|move|go) now|urgently)\b`, TimelineImmediate, 0.85, "timeline"),
		p(`\b(next|in the next|within|in)\s+(1|one|2|two|3|three|a few|few|a couple( of)?|couple( of)?)\s+months?\b`, TimelineShort, 0.8, "timeline"),
		p(`\b(this|by)\s+(spring|summer|fall|autumn|winter)\b`, TimelineShort, 0.7, "timeline"),
		p(`\b(4|four|5|five|6|six|six to twelve|6-12)\s+months\b`, TimelineMedium, 0.8, "timeline"),
		p(`\b(later this year|end of (the\s+)?year|by the end of the year|before the year is out)\b`, TimelineMedium, 0.75, "timeline"),
		p(`\b(next year|a year|1 year|one year|a couple( of)? years|few years|\d+\s+years)\b`, TimelineLong, 0.75, "timeline"),
		p(`\b((not sure|no idea|don'?t know)\s+(when|about (the\s+)?timing)|no\s+(set\s+|real\s+)?time\s*(line|frame))\b`, TimelineUnknown, 0.75, "timeline"),

		// Budget
		p(`\b(not|haven'?t( been)?|aren'?t|isn'?t|no)\s+(yet\s+)?pre[\s-]?approv`, BudgetNotPreapproved, 0.92, ""),
		p(`\bpre[\s-]?approv(ed|al)\b`, BudgetPreapproved, 0.9, "budget"),
		p(`(\$?\d+(\.\d+)?\s?k?|\$\d{1,3}(,\d{3})+)\s*(-|–|to)\s*\$?\d+(\.\d+)?\s?(k|m|mil|million)\b`, BudgetRange, 0.85, "budget_range"),
		p(`\$\d{1,3}(,\d{3})+\s*(-|–|to)\s*\$\d{1,3}(,\d{3})+`, BudgetRange, 0.85, "budget_range"),
		p(`\bbetween\s+\$?\d[\d,.]*\s*(k|m)?\s+and\s+\$?\d[\d,.]*\s*(k|m|mil|million)?\b`, BudgetRange, 0.85, "budget_range"),
		p(`\$\s?\d[\d,]*(\.\d+)?\s*(k|m|mil|million)?\b`, BudgetSpecific, 0.8, "budget"),
		p(`\b\d+(\.\d+)?\s?(k|m|mil|million)\b`, BudgetSpecific, 0.75, "budget"),
		p(`\b(pay(ing)?|all)\s+(in\s+)?cash\b|\bcash\s+(buyer|offer)\b`, BudgetCash, 0.85, "budget"),

		// Location and property
		p(`\b(looking|want(ing)?|hoping|interested|planning)\s+(to\s+(buy|live|move)\s+)?(in|near|around|close to)\b`, LocationPreference, 0.7, "location"),
		p(`\b(neighborhoods?|zip code|school district|suburbs?|downtown)\b`, LocationPreference, 0.6, "location"),
		p(`\b(condos?|condominiums?|townhouses?|townhomes?|single[\s-]family|duplex|triplex|multi[\s-]family|ranch|bungalow|cabin|mobile home|loft)\b`, PropertyType, 0.75, "property_type"),
		p(`\b\d\s*\+?\s*(bed(room)?s?|br|bd)\b`, PropertyType, 0.6, "bedrooms"),

		// Motivation
		p(`\b(new job|relocat(e|ing|ion)|job (transfer|offer)|transferr(ed|ing) for work)\b`, MotivationJob, 0.8, ""),
		p(`\b(baby on the way|having a baby|(growing|bigger|expanding) family|getting married|just married)\b`, MotivationFamily, 0.8, ""),
		p(`\b(downsiz(e|ing)|empty nest(ers?)?|house is too big)\b`, MotivationDownsize, 0.8, ""),
		p(`\b(upsiz(e|ing)|more (space|room)|outgr(ew|own|owing))\b`, MotivationUpsize, 0.8, ""),
		p(`\b(investment property|investing|investor|rental (property|income)|flip(ping)? (houses|homes)|cash flow)\b`, MotivationInvest, 0.8, ""),
		p(`\bfirst[\s-](time\s+)?(home|house|buyer)\b`, MotivationFirstHome, 0.8, ""),

		// Appointments and showings
		p(`\bcancel\s+(the\s+|my\s+|our\s+)?(appointment|meeting|showing|call|tour)\b`, AppointmentCancel, 0.9, ""),
		p(`\b(reschedule|move (our|the) (appointment|meeting|showing)|different (time|day))\b`, AppointmentReschedule, 0.85, ""),
		p(`\b(set up|schedule|book)\s+(a\s+)?(call|meeting|appointment|time|consult(ation)?|showing|tour)\b`, AppointmentInterest, 0.85, ""),
		p(`\b(can we|let'?s|could we)\s+(meet|talk|chat|get together)\b`, AppointmentInterest, 0.8, ""),
		p(`\b(see|tour|view|visit|walk through)\s+(the\s+|this\s+|that\s+|a\s+|some\s+)?(house|home|homes|property|properties|place|condo|listing)s?\b`, ShowingRequest, 0.85, ""),
		p(`\b(showing|open house)\b`, ShowingRequest, 0.75, ""),
		p(`\b(see you (then|there)|confirmed|that works|works for me)\b`, AppointmentConfirm, 0.8, ""),
		p(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today)\b.{0,20}\b\d{1,2}(:\d{2})?\s*(am|pm)\b`, TimeSelection, 0.75, "time_slot"),

		// Interest
		p(`\b(very\s+|really\s+|definitely\s+|still\s+)?interested\b`, PositiveInterest, 0.7, ""),
		p(`\b(sounds (good|great)|love (it|that|to)|i'?m in|excited|perfect|awesome)\b`, PositiveInterest, 0.7, ""),
		p(`\b(sell(ing)? (my|our) (house|home|place|condo)|list(ing)? (my|our) (house|home)|what('?s| is) my home worth|home value)\b`, SellingInterest, 0.8, ""),
		p(`\b(how many (beds|bedrooms|baths|bathrooms)|square (feet|footage)|sq\.? ?ft|hoa|property tax(es)?|still available|what('?s| is) the (price|asking))\b`, PropertyQuestion, 0.8, ""),

		// Basics
		p(`^\s*(hi|hello|hey|hiya|howdy|good (morning|afternoon|evening))(\s+there)?\s*[!.,]*\s*$`, Greeting, 0.9, ""),
		p(`^\s*(hi|hello|hey|hiya|howdy|good (morning|afternoon|evening))\b`, Greeting, 0.6, ""),
		p(`\b(thanks|thank you|appreciate (it|that|you))\b`, Thanks, 0.8, ""),
		p(`^\s*(yes|yeah|yep|yup|sure|absolutely|definitely|of course|ok(ay)?)\s*[.!]*\s*$`, Yes, 0.85, ""),
		p(`^\s*(no|nope|nah|not really)\s*[.!]*\s*$`, No, 0.85, ""),
		p(`\b(no thanks|no thank you|i'?ll pass|pass for now|not for me)\b`, Decline, 0.8, ""),
	}}
}

// Match returns every row that matches text, in table order.
func (m *PatternMatcher) Match(text string) []PatternMatch {
	var out []PatternMatch
	for _, pat := range m.patterns {
		loc := pat.regex.FindStringIndex(text)
		if loc == nil {
			continue
		}
		out = append(out, PatternMatch{
			Intent:     pat.intent,
			Confidence: pat.confidence,
			Match:      text[loc[0]:loc[1]],
			EntityHint: pat.entityHint,
		})
	}
	return out
}

// Len reports the number of rows in the table.
func (m *PatternMatcher) Len() int { return len(m.patterns) }
