package classifier

import "regexp"

type tierPattern struct {
	id     string
	regex  *regexp.Regexp
	weight float64
}

type patternGroup struct {
	category Category
	patterns []tierPattern
}

// patternGroups is the ordered Tier 1 library: the first group with any
// matching pattern wins the category. Every pattern is word-boundary
// anchored so that e.g. "schedule" inside "scheduling" cannot leak a match
// into an unrelated group.
var patternGroups = []patternGroup{
	{
		category: CategoryBookingConfirmed,
		patterns: []tierPattern{
			{id: "appointment_set", regex: regexp.MustCompile(`(?i)\b(appointment|visit|consultation)\s+(is\s+|has\s+been\s+)?(booked|confirmed|scheduled|set)\b`), weight: 0.95},
			{id: "all_set", regex: regexp.MustCompile(`(?i)\byou('?re| are)\s+all\s+set\b`), weight: 0.9},
			{id: "ive_booked", regex: regexp.MustCompile(`(?i)\bi('?ve| have)\s+(booked|scheduled)\s+(you|your|the)\b`), weight: 0.95},
			{id: "confirmation_number", regex: regexp.MustCompile(`(?i)\bconfirmation\s+(number|code)\b`), weight: 0.85},
			{id: "see_you_then", regex: regexp.MustCompile(`(?i)\b(we('?ll| will)\s+see\s+you|see\s+you)\s+(on|at)\s+\w+`), weight: 0.7},
		},
	},
	{
		category: CategoryTransferRequested,
		patterns: []tierPattern{
			{id: "transfer_now", regex: regexp.MustCompile(`(?i)\btransfer(ring)?\s+(you|your\s+call)\b`), weight: 0.95},
			{id: "connect_team", regex: regexp.MustCompile(`(?i)\bconnect\s+you\s+(to|with)\b`), weight: 0.9},
			{id: "team_member", regex: regexp.MustCompile(`(?i)\b(team\s+member|staff\s+member|someone\s+from\s+(our|the)\s+(office|team))\s+will\s+(call|reach|contact|assist)\b`), weight: 0.85},
			{id: "hold_please", regex: regexp.MustCompile(`(?i)\bplease\s+hold\b.*\b(transfer|connect)\b`), weight: 0.8},
		},
	},
	{
		category: CategoryErrorMessage,
		patterns: []tierPattern{
			{id: "internal_error", regex: regexp.MustCompile(`(?i)\b(internal\s+(server\s+)?error|stack\s*trace|traceback|exception)\b`), weight: 0.95},
			{id: "bad_gateway", regex: regexp.MustCompile(`(?i)\b(502|bad\s+gateway|503|service\s+unavailable)\b`), weight: 0.95},
			{id: "tech_difficulty", regex: regexp.MustCompile(`(?i)\b(technical\s+(difficulties|issue|problem)|something\s+went\s+wrong)\b`), weight: 0.85},
		},
	},
	{
		category: CategoryPhoneRequested,
		patterns: []tierPattern{
			{id: "best_phone", regex: regexp.MustCompile(`(?i)\b(best|your|a)\s+(phone|cell|mobile|contact)\s*(number)?\b.*\?`), weight: 0.9},
			{id: "phone_number_q", regex: regexp.MustCompile(`(?i)\bphone\s+number\b.*\?`), weight: 0.85},
			{id: "reach_you_at", regex: regexp.MustCompile(`(?i)\b(number|phone)\s+(we|i)\s+can\s+reach\s+you\b`), weight: 0.85},
		},
	},
	{
		category: CategoryNameRequested,
		patterns: []tierPattern{
			{id: "your_name", regex: regexp.MustCompile(`(?i)\b(your|the\s+parent('?s)?)\s+(full\s+)?name\b.*\?`), weight: 0.9},
			{id: "who_speaking", regex: regexp.MustCompile(`(?i)\bwho\s+(am\s+i\s+speaking|do\s+i\s+have\s+the\s+pleasure)\b`), weight: 0.8},
			{id: "may_have_name", regex: regexp.MustCompile(`(?i)\b(may|can|could)\s+i\s+(have|get)\s+your\s+name\b`), weight: 0.9},
		},
	},
	{
		category: CategoryChildNameAsked,
		patterns: []tierPattern{
			{id: "child_name", regex: regexp.MustCompile(`(?i)\b(child|patient|son|daughter|kiddo)('?s)?\s+(full\s+)?name\b`), weight: 0.9},
			{id: "who_for", regex: regexp.MustCompile(`(?i)\bwho\s+(is\s+)?(the\s+)?(appointment|visit)\s+for\b`), weight: 0.85},
		},
	},
	{
		category: CategoryDOBRequested,
		patterns: []tierPattern{
			{id: "date_of_birth", regex: regexp.MustCompile(`(?i)\b(date\s+of\s+birth|birth\s*da(y|te)|dob)\b`), weight: 0.9},
			{id: "how_old", regex: regexp.MustCompile(`(?i)\bhow\s+old\s+is\b`), weight: 0.8},
		},
	},
	{
		category: CategoryEmailRequested,
		patterns: []tierPattern{
			{id: "email_q", regex: regexp.MustCompile(`(?i)\b(your|an?|best)\s+e?mail\s*(address)?\b.*\?`), weight: 0.9},
			{id: "email_address", regex: regexp.MustCompile(`(?i)\bemail\s+address\b`), weight: 0.8},
		},
	},
	{
		category: CategoryInsuranceAsked,
		patterns: []tierPattern{
			{id: "insurance_q", regex: regexp.MustCompile(`(?i)\b(dental\s+)?insurance\s+(provider|plan|carrier|company)\b`), weight: 0.9},
			{id: "have_insurance", regex: regexp.MustCompile(`(?i)\bdo\s+you\s+have\s+(dental\s+)?insurance\b`), weight: 0.9},
		},
	},
	{
		category: CategorySlotOffered,
		patterns: []tierPattern{
			{id: "available_times", regex: regexp.MustCompile(`(?i)\b(available|open(ings)?)\s+(times?|slots?|appointments?)\b`), weight: 0.85},
			{id: "we_have_slot", regex: regexp.MustCompile(`(?i)\bwe\s+have\s+(an?\s+)?(opening|slot|availability)\b`), weight: 0.85},
			{id: "would_work", regex: regexp.MustCompile(`(?i)\b(would|does)\s+\w+day\b.*\bwork\s+for\s+you\b`), weight: 0.8},
			{id: "morning_afternoon", regex: regexp.MustCompile(`(?i)\bprefer\b.*\b(morning|afternoon|evening)s?\b`), weight: 0.75},
		},
	},
	{
		category: CategoryAddressOffered,
		patterns: []tierPattern{
			{id: "located_at", regex: regexp.MustCompile(`(?i)\b(we('?re| are)\s+located|our\s+(office|address)\s+is)\b`), weight: 0.9},
			{id: "directions", regex: regexp.MustCompile(`(?i)\b(directions|how\s+to\s+(get|find)\s+(here|us))\b`), weight: 0.8},
		},
	},
	{
		category: CategoryGoodbye,
		patterns: []tierPattern{
			{id: "goodbye", regex: regexp.MustCompile(`(?i)\b(good\s*bye|bye\s*(bye|now)?|take\s+care)\b[.!\s]*$`), weight: 0.85},
			{id: "great_day", regex: regexp.MustCompile(`(?i)\bhave\s+a\s+(great|good|wonderful|nice)\s+(day|evening|afternoon|one)\b`), weight: 0.85},
			{id: "thanks_calling", regex: regexp.MustCompile(`(?i)\bthank(s| you)\s+for\s+calling\b`), weight: 0.8},
		},
	},
}

// bookingConfirmedGroup finds the booking-confirmation group so the flag can
// be computed even when another category wins the turn.
func bookingConfirmedGroup() patternGroup {
	for _, g := range patternGroups {
		if g.category == CategoryBookingConfirmed {
			return g
		}
	}
	return patternGroup{category: CategoryBookingConfirmed}
}
