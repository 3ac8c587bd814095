package scenario

import (
	"strings"
	"time"
)

func trimmedLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := trimmedLower(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Builtin returns the demo scenario catalog used when no scenario directory
// is configured. These mirror the production smoke cases for the ortho
// booking agent.
func Builtin() []TestCase {
	return []TestCase{
		{
			ID:      "new-patient-booking",
			Version: 1,
			Persona: Persona{
				Name: "Dana (new patient parent)",
				Inventory: DataInventory{
					ParentName:        "Dana Rivera",
					ParentPhone:       "2155551234",
					ParentEmail:       "dana.rivera@example.com",
					ChildName:         "Mia Rivera",
					ChildDOB:          "2014-03-22",
					InsuranceProvider: "Delta Dental",
					PreferredTime:     "Tuesday morning",
				},
				Traits: PersonaTraits{Verbosity: "normal", Patience: 3, ProvidesExtraInfo: true},
			},
			Goals: []Goal{
				{
					ID:             "collect-contact",
					Type:           GoalDataCollection,
					RequiredFields: []string{"parent_name", "parent_phone", "child_name"},
					Priority:       1,
					Required:       true,
				},
				{ID: "booking", Type: GoalBookingConfirmed, Priority: 2, Required: true},
			},
			Constraints: []Constraint{
				{
					ID:          "no-internal-errors",
					Type:        ConstraintMustNotHappen,
					Severity:    SeverityCritical,
					Description: "internal error text must never reach the caller",
					Pattern:     `(?i)(internal server error|stack trace|traceback|502 bad gateway)`,
				},
				{ID: "turn-cap", Type: ConstraintMaxTurns, Severity: SeverityMedium, MaxTurns: 20},
				{ID: "time-cap", Type: ConstraintMaxTime, Severity: SeverityMedium, MaxTime: 5 * time.Minute},
			},
			InitialUtterance: "Hi, I'd like to schedule an orthodontic consultation for my daughter.",
		},
		{
			ID:      "transfer-request",
			Version: 1,
			Persona: Persona{
				Name: "Sam (billing question)",
				Inventory: DataInventory{
					ParentName:  "Sam Okafor",
					ParentPhone: "2675550188",
				},
				Traits: PersonaTraits{Verbosity: "terse", Patience: 2},
			},
			Goals: []Goal{
				{ID: "transfer", Type: GoalTransferInitiated, Priority: 1, Required: true},
			},
			Constraints: []Constraint{
				{ID: "turn-cap", Type: ConstraintMaxTurns, Severity: SeverityMedium, MaxTurns: 10},
			},
			InitialUtterance: "I need to talk to a person about a billing problem with my account.",
		},
		{
			ID:      "phone-collection",
			Version: 1,
			Persona: Persona{
				Name: "Priya (callback request)",
				Inventory: DataInventory{
					ParentName:  "Priya Shah",
					ParentPhone: "2155559876",
					ChildName:   "Arjun Shah",
				},
				Traits: PersonaTraits{Verbosity: "chatty", Patience: 3, ProvidesExtraInfo: true},
			},
			Goals: []Goal{
				{
					ID:             "collect-phone",
					Type:           GoalDataCollection,
					RequiredFields: []string{"parent_phone"},
					Priority:       1,
					Required:       true,
				},
				{ID: "wrap-up", Type: GoalConversationEnded, Priority: 2, Required: false},
			},
			Constraints: []Constraint{
				{ID: "turn-cap", Type: ConstraintMaxTurns, Severity: SeverityMedium, MaxTurns: 12},
			},
			InitialUtterance: "Hello, can someone call me back about braces for my son?",
		},
	}
}

// Select filters a scenario list by comma-separated ids; an empty selection
// returns everything.
func Select(cases []TestCase, selection string) []TestCase {
	selection = trimmedLower(selection)
	if selection == "" || selection == "all" {
		return cases
	}
	wanted := make(map[string]struct{})
	for _, part := range splitComma(selection) {
		wanted[part] = struct{}{}
	}
	var out []TestCase
	for _, tc := range cases {
		if _, ok := wanted[trimmedLower(tc.ID)]; ok {
			out = append(out, tc)
		}
	}
	return out
}
