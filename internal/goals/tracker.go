package goals

import (
	"sort"
	"strings"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

// FieldState records one collected field. Collection is monotonic: a field
// is never removed once collected, and corrections are last-write-wins.
type FieldState struct {
	Value string
	Turn  int
}

// GoalStatus is the per-goal achievement view for one run.
type GoalStatus struct {
	Goal          scenario.Goal
	Achieved      bool
	AchievedTurn  int
	MissingFields []string
}

// Tracker consumes classified turns for one run and reports per-field
// collection state and per-goal achievement. Achievement, once true, is
// permanent for the run.
type Tracker struct {
	goals    []scenario.Goal
	fields   map[string]FieldState
	achieved map[string]int
}

// NewTracker builds a tracker over the test case's declared goals.
func NewTracker(goals []scenario.Goal) *Tracker {
	return &Tracker{
		goals:    goals,
		fields:   make(map[string]FieldState),
		achieved: make(map[string]int),
	}
}

// fieldForCategory is the deterministic field-inference table: the agent's
// question category names the field the persona's answering reply collects.
func fieldForCategory(category classifier.Category) string {
	switch category {
	case classifier.CategoryPhoneRequested:
		return "parent_phone"
	case classifier.CategoryNameRequested:
		return "parent_name"
	case classifier.CategoryChildNameAsked:
		return "child_name"
	case classifier.CategoryDOBRequested:
		return "child_dob"
	case classifier.CategoryEmailRequested:
		return "parent_email"
	case classifier.CategoryInsuranceAsked:
		return "insurance_provider"
	case classifier.CategorySlotOffered:
		return "preferred_time"
	default:
		return ""
	}
}

// categoryForGoalType maps non-data goal types to the single classification
// category whose occurrence achieves them.
func categoryForGoalType(t scenario.GoalType) classifier.Category {
	switch t {
	case scenario.GoalBookingConfirmed:
		return classifier.CategoryBookingConfirmed
	case scenario.GoalTransferInitiated:
		return classifier.CategoryTransferRequested
	case scenario.GoalConversationEnded:
		return classifier.CategoryGoodbye
	case scenario.GoalErrorHandled:
		return classifier.CategoryErrorMessage
	default:
		return ""
	}
}

// RecordAssistantTurn feeds one classified agent turn into goal state.
func (t *Tracker) RecordAssistantTurn(turn int, res classifier.Result, view scenario.TurnView) {
	for _, g := range t.goals {
		if _, done := t.achieved[g.ID]; done {
			continue
		}
		switch g.Type {
		case scenario.GoalDataCollection:
			// Field collection happens on the user's answering reply.
		case scenario.GoalCustom:
			if g.Predicate != nil && g.Predicate(view) {
				t.achieved[g.ID] = turn
			}
		case scenario.GoalBookingConfirmed:
			if res.BookingConfirmed || res.Category == classifier.CategoryBookingConfirmed {
				t.achieved[g.ID] = turn
			}
		default:
			if res.Category == categoryForGoalType(g.Type) {
				t.achieved[g.ID] = turn
			}
		}
	}
}

// RecordUserReply marks fields collected from the persona's outgoing reply
// that answered the agent's last question. askedCategory is the
// classification of the agent turn the reply answers.
func (t *Tracker) RecordUserReply(turn int, askedCategory classifier.Category, reply string, inventory scenario.DataInventory) {
	field := fieldForCategory(askedCategory)
	if field == "" {
		return
	}
	value, ok := inventory.Field(field)
	if !ok || !strings.Contains(reply, value) {
		return
	}
	t.fields[field] = FieldState{Value: value, Turn: turn}

	for _, g := range t.goals {
		if g.Type != scenario.GoalDataCollection {
			continue
		}
		if _, done := t.achieved[g.ID]; done {
			continue
		}
		if len(t.missingFields(g)) == 0 {
			t.achieved[g.ID] = turn
		}
	}
}

func (t *Tracker) missingFields(g scenario.Goal) []string {
	var missing []string
	for _, f := range g.RequiredFields {
		if _, ok := t.fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Field returns the collected state of one field.
func (t *Tracker) Field(name string) (FieldState, bool) {
	fs, ok := t.fields[name]
	return fs, ok
}

// Snapshot returns a copy of the collected-field map.
func (t *Tracker) Snapshot() map[string]FieldState {
	out := make(map[string]FieldState, len(t.fields))
	for k, v := range t.fields {
		out[k] = v
	}
	return out
}

// Statuses reports per-goal achievement ordered by declaration.
func (t *Tracker) Statuses() []GoalStatus {
	out := make([]GoalStatus, 0, len(t.goals))
	for _, g := range t.goals {
		status := GoalStatus{Goal: g}
		if turn, ok := t.achieved[g.ID]; ok {
			status.Achieved = true
			status.AchievedTurn = turn
		} else if g.Type == scenario.GoalDataCollection {
			status.MissingFields = t.missingFields(g)
			sort.Strings(status.MissingFields)
		}
		out = append(out, status)
	}
	return out
}

// RequiredAchieved reports whether every required goal is achieved.
func (t *Tracker) RequiredAchieved() bool {
	for _, g := range t.goals {
		if !g.Required {
			continue
		}
		if _, ok := t.achieved[g.ID]; !ok {
			return false
		}
	}
	return true
}

// MissingRequiredGoalIDs lists required goals not yet achieved.
func (t *Tracker) MissingRequiredGoalIDs() []string {
	var out []string
	for _, g := range t.goals {
		if !g.Required {
			continue
		}
		if _, ok := t.achieved[g.ID]; !ok {
			out = append(out, g.ID)
		}
	}
	return out
}
