package scenario

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
)

// GoalType is the closed set of declared conversational outcomes.
type GoalType string

const (
	GoalDataCollection    GoalType = "data_collection"
	GoalBookingConfirmed  GoalType = "booking_confirmed"
	GoalTransferInitiated GoalType = "transfer_initiated"
	GoalConversationEnded GoalType = "conversation_ended"
	GoalErrorHandled      GoalType = "error_handled"
	GoalCustom            GoalType = "custom"
)

// ParseGoalType validates a raw goal type at the boundary.
func ParseGoalType(raw string) (GoalType, error) {
	t := GoalType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case GoalDataCollection, GoalBookingConfirmed, GoalTransferInitiated,
		GoalConversationEnded, GoalErrorHandled, GoalCustom:
		return t, nil
	default:
		return "", fmt.Errorf("scenario: goal type %q is not recognized", raw)
	}
}

// ConstraintType is the closed set of behavioral bounds.
type ConstraintType string

const (
	ConstraintMustHappen    ConstraintType = "must_happen"
	ConstraintMustNotHappen ConstraintType = "must_not_happen"
	ConstraintMaxTurns      ConstraintType = "max_turns"
	ConstraintMaxTime       ConstraintType = "max_time"
)

// ParseConstraintType validates a raw constraint type at the boundary.
func ParseConstraintType(raw string) (ConstraintType, error) {
	t := ConstraintType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case ConstraintMustHappen, ConstraintMustNotHappen, ConstraintMaxTurns, ConstraintMaxTime:
		return t, nil
	default:
		return "", fmt.Errorf("scenario: constraint type %q is not recognized", raw)
	}
}

// Severity is carried through for reporting and triage priority only; it
// never changes pass/fail semantics.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DataInventory holds the identity and preference fields a simulated caller
// may reveal during the conversation.
type DataInventory struct {
	ParentName        string `json:"parent_name,omitempty"`
	ParentPhone       string `json:"parent_phone,omitempty"`
	ParentEmail       string `json:"parent_email,omitempty"`
	ChildName         string `json:"child_name,omitempty"`
	ChildDOB          string `json:"child_dob,omitempty"`
	InsuranceProvider string `json:"insurance_provider,omitempty"`
	PreferredTime     string `json:"preferred_time,omitempty"`
}

// Field returns the inventory value for a declared field name.
func (d DataInventory) Field(name string) (string, bool) {
	switch name {
	case "parent_name":
		return d.ParentName, d.ParentName != ""
	case "parent_phone":
		return d.ParentPhone, d.ParentPhone != ""
	case "parent_email":
		return d.ParentEmail, d.ParentEmail != ""
	case "child_name":
		return d.ChildName, d.ChildName != ""
	case "child_dob":
		return d.ChildDOB, d.ChildDOB != ""
	case "insurance_provider":
		return d.InsuranceProvider, d.InsuranceProvider != ""
	case "preferred_time":
		return d.PreferredTime, d.PreferredTime != ""
	default:
		return "", false
	}
}

// PersonaTraits govern how and when inventory fields are revealed.
type PersonaTraits struct {
	Verbosity         string `json:"verbosity,omitempty"` // terse | normal | chatty
	Patience          int    `json:"patience,omitempty"`  // generic turns tolerated before pressing on
	TechSavvy         bool   `json:"tech_savvy,omitempty"`
	ProvidesExtraInfo bool   `json:"provides_extra_info,omitempty"`
}

// Persona is a scripted simulated caller. Read-only input to the simulator.
type Persona struct {
	Name      string        `json:"name"`
	Inventory DataInventory `json:"inventory"`
	Traits    PersonaTraits `json:"traits"`
}

// TurnView is the per-turn snapshot custom goal predicates evaluate against.
type TurnView struct {
	Index            int
	Role             string
	Content          string
	Category         classifier.Category
	BookingConfirmed bool
}

// Goal is a declared outcome a test case expects the conversation to reach.
// Goals never mutate; achievement status is tracked per run, outside the goal.
type Goal struct {
	ID             string   `json:"id"`
	Type           GoalType `json:"type"`
	RequiredFields []string `json:"required_fields,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	Required       bool     `json:"required"`

	// Predicate is required for custom goals. Predicates are supplied in Go
	// by the test author and cannot be loaded from JSON scenario files.
	Predicate func(TurnView) bool `json:"-"`
}

// Constraint is a declared behavioral bound, evaluated continuously.
type Constraint struct {
	ID          string         `json:"id"`
	Type        ConstraintType `json:"type"`
	Severity    Severity       `json:"severity,omitempty"`
	Description string         `json:"description,omitempty"`

	// Pattern applies to must_happen / must_not_happen: a regex matched
	// against turn content and tool-call payloads.
	Pattern string `json:"pattern,omitempty"`

	MaxTurns int           `json:"max_turns,omitempty"`
	MaxTime  time.Duration `json:"-"`

	compiled *regexp.Regexp
}

// Regexp returns the compiled constraint pattern. Validate must have run.
func (c *Constraint) Regexp() *regexp.Regexp {
	return c.compiled
}

// TestCase is an immutable goal-oriented test definition, versioned on edit.
type TestCase struct {
	ID                 string                `json:"id"`
	Version            int                   `json:"version"`
	Persona            Persona               `json:"persona"`
	Goals              []Goal                `json:"goals"`
	Constraints        []Constraint          `json:"constraints,omitempty"`
	InitialUtterance   string                `json:"initial_utterance"`
	TerminalCategories []classifier.Category `json:"terminal_categories,omitempty"`
}

// DefaultTerminalCategories end a conversation when reached.
func DefaultTerminalCategories() []classifier.Category {
	return []classifier.Category{
		classifier.CategoryBookingConfirmed,
		classifier.CategoryTransferRequested,
		classifier.CategoryGoodbye,
	}
}

// Validate checks the test case at the boundary so an unrecognized value is
// a typed error, not a silently-accepted string.
func (tc *TestCase) Validate() error {
	if strings.TrimSpace(tc.ID) == "" {
		return errors.New("scenario: test case id required")
	}
	if strings.TrimSpace(tc.InitialUtterance) == "" {
		return fmt.Errorf("scenario: %s: initial utterance required", tc.ID)
	}
	if len(tc.Goals) == 0 {
		return fmt.Errorf("scenario: %s: at least one goal required", tc.ID)
	}

	seen := make(map[string]struct{}, len(tc.Goals))
	for i := range tc.Goals {
		g := &tc.Goals[i]
		if _, err := ParseGoalType(string(g.Type)); err != nil {
			return fmt.Errorf("scenario: %s: goal %q: %w", tc.ID, g.ID, err)
		}
		if strings.TrimSpace(g.ID) == "" {
			return fmt.Errorf("scenario: %s: goal %d: id required", tc.ID, i)
		}
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("scenario: %s: duplicate goal id %q", tc.ID, g.ID)
		}
		seen[g.ID] = struct{}{}
		if g.Type == GoalDataCollection && len(g.RequiredFields) == 0 {
			return fmt.Errorf("scenario: %s: goal %q: data_collection requires fields", tc.ID, g.ID)
		}
		if g.Type == GoalCustom && g.Predicate == nil {
			return fmt.Errorf("scenario: %s: goal %q: custom goal requires a predicate", tc.ID, g.ID)
		}
	}

	for i := range tc.Constraints {
		c := &tc.Constraints[i]
		if _, err := ParseConstraintType(string(c.Type)); err != nil {
			return fmt.Errorf("scenario: %s: constraint %q: %w", tc.ID, c.ID, err)
		}
		switch c.Type {
		case ConstraintMustHappen, ConstraintMustNotHappen:
			if strings.TrimSpace(c.Pattern) == "" {
				return fmt.Errorf("scenario: %s: constraint %q: pattern required", tc.ID, c.ID)
			}
			compiled, err := regexp.Compile(c.Pattern)
			if err != nil {
				return fmt.Errorf("scenario: %s: constraint %q: invalid pattern: %w", tc.ID, c.ID, err)
			}
			c.compiled = compiled
		case ConstraintMaxTurns:
			if c.MaxTurns <= 0 {
				return fmt.Errorf("scenario: %s: constraint %q: max_turns must be positive", tc.ID, c.ID)
			}
		case ConstraintMaxTime:
			if c.MaxTime <= 0 {
				return fmt.Errorf("scenario: %s: constraint %q: max_time must be positive", tc.ID, c.ID)
			}
		}
	}

	if len(tc.TerminalCategories) == 0 {
		tc.TerminalCategories = DefaultTerminalCategories()
	}
	return nil
}
