package goals

import (
	"fmt"
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

// Violation is one constraint breach. Severity is carried for triage only;
// any must_happen / must_not_happen violation fails the test.
type Violation struct {
	Constraint scenario.Constraint
	Turn       int
	Detail     string
}

// Evaluator checks a run's constraints against the full turn and tool-call
// history. It is the single source of truth for max_turns / max_time so the
// simulator's own termination logic can never disagree with it.
type Evaluator struct {
	constraints    []scenario.Constraint
	violations     []Violation
	mustHappenSeen map[string]bool
}

// NewEvaluator builds an evaluator; constraints must be pre-validated (their
// patterns compiled by scenario.TestCase.Validate).
func NewEvaluator(constraints []scenario.Constraint) *Evaluator {
	return &Evaluator{
		constraints:    constraints,
		mustHappenSeen: make(map[string]bool),
	}
}

// ObserveContent feeds one piece of history (a turn's content or a
// tool-call payload) through the pattern constraints. must_not_happen
// matches are recorded immediately and returned so callers can fail fast.
func (e *Evaluator) ObserveContent(turn int, content string) *Violation {
	var fired *Violation
	for i := range e.constraints {
		c := &e.constraints[i]
		re := c.Regexp()
		if re == nil || !re.MatchString(content) {
			continue
		}
		switch c.Type {
		case scenario.ConstraintMustHappen:
			e.mustHappenSeen[c.ID] = true
		case scenario.ConstraintMustNotHappen:
			v := Violation{
				Constraint: *c,
				Turn:       turn,
				Detail:     fmt.Sprintf("forbidden pattern matched: %s", c.Description),
			}
			e.violations = append(e.violations, v)
			if fired == nil {
				fired = &v
			}
		}
	}
	return fired
}

// CheckLimits evaluates max_turns and max_time against the completed turn
// count and elapsed wall-clock time. The first exceeded cap is returned.
func (e *Evaluator) CheckLimits(turnsCompleted int, elapsed time.Duration) *Violation {
	for i := range e.constraints {
		c := &e.constraints[i]
		switch c.Type {
		case scenario.ConstraintMaxTurns:
			if turnsCompleted > c.MaxTurns {
				v := Violation{
					Constraint: *c,
					Turn:       turnsCompleted,
					Detail:     fmt.Sprintf("max turns exceeded: %d > %d", turnsCompleted, c.MaxTurns),
				}
				e.violations = append(e.violations, v)
				return &v
			}
		case scenario.ConstraintMaxTime:
			if elapsed > c.MaxTime {
				v := Violation{
					Constraint: *c,
					Turn:       turnsCompleted,
					Detail:     fmt.Sprintf("max time exceeded: %s > %s", elapsed.Round(time.Millisecond), c.MaxTime),
				}
				e.violations = append(e.violations, v)
				return &v
			}
		}
	}
	return nil
}

// Finalize records violations for must_happen constraints that never fired.
// Call once, when the run reaches a terminal state.
func (e *Evaluator) Finalize(finalTurn int) {
	for i := range e.constraints {
		c := &e.constraints[i]
		if c.Type != scenario.ConstraintMustHappen {
			continue
		}
		if !e.mustHappenSeen[c.ID] {
			e.violations = append(e.violations, Violation{
				Constraint: *c,
				Turn:       finalTurn,
				Detail:     fmt.Sprintf("required pattern never matched: %s", c.Description),
			})
		}
	}
}

// Violations returns everything recorded so far, in order.
func (e *Evaluator) Violations() []Violation {
	return e.violations
}
