package goals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

func compiledConstraints(t *testing.T, constraints []scenario.Constraint) []scenario.Constraint {
	t.Helper()
	tc := scenario.TestCase{
		ID:               "tc",
		InitialUtterance: "hi",
		Goals:            []scenario.Goal{{ID: "g", Type: scenario.GoalBookingConfirmed}},
		Constraints:      constraints,
	}
	require.NoError(t, tc.Validate())
	return tc.Constraints
}

func TestMustNotHappenFiresImmediately(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{
			ID:          "no-errors",
			Type:        scenario.ConstraintMustNotHappen,
			Severity:    scenario.SeverityCritical,
			Description: "no internal error text",
			Pattern:     `(?i)stack trace`,
		},
	}))

	v := eval.ObserveContent(2, "Oops, here is a Stack Trace: ...")
	require.NotNil(t, v)
	assert.Equal(t, "no-errors", v.Constraint.ID)
	assert.Equal(t, 2, v.Turn)
	assert.Len(t, eval.Violations(), 1)
}

func TestMustNotHappenIgnoresCleanContent(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{ID: "no-errors", Type: scenario.ConstraintMustNotHappen, Pattern: `(?i)stack trace`},
	}))

	assert.Nil(t, eval.ObserveContent(1, "Your appointment is booked!"))
	assert.Empty(t, eval.Violations())
}

func TestMustHappenSatisfied(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{
			ID:          "greets",
			Type:        scenario.ConstraintMustHappen,
			Description: "agent greets the caller",
			Pattern:     `(?i)\bwelcome\b`,
		},
	}))

	assert.Nil(t, eval.ObserveContent(1, "Welcome to Dentix Ortho!"))
	eval.Finalize(5)
	assert.Empty(t, eval.Violations())
}

func TestMustHappenUnsatisfiedViolatesOnFinalize(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{ID: "greets", Type: scenario.ConstraintMustHappen, Pattern: `(?i)\bwelcome\b`},
	}))

	eval.ObserveContent(1, "Hi there.")
	eval.Finalize(4)

	violations := eval.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, "greets", violations[0].Constraint.ID)
	assert.Equal(t, 4, violations[0].Turn)
}

func TestCheckLimitsMaxTurns(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{ID: "cap", Type: scenario.ConstraintMaxTurns, MaxTurns: 3},
	}))

	assert.Nil(t, eval.CheckLimits(3, time.Second), "reaching the cap is allowed")

	v := eval.CheckLimits(4, time.Second)
	require.NotNil(t, v)
	assert.Contains(t, v.Detail, "max turns exceeded")
}

func TestCheckLimitsMaxTime(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{ID: "clock", Type: scenario.ConstraintMaxTime, MaxTime: 30 * time.Second},
	}))

	assert.Nil(t, eval.CheckLimits(2, 29*time.Second))

	v := eval.CheckLimits(3, 31*time.Second)
	require.NotNil(t, v)
	assert.Contains(t, v.Detail, "max time exceeded")
}

func TestToolCallContentObserved(t *testing.T) {
	eval := NewEvaluator(compiledConstraints(t, []scenario.Constraint{
		{
			ID:          "no-pii-in-tools",
			Type:        scenario.ConstraintMustNotHappen,
			Description: "SSN must never appear in tool payloads",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		},
	}))

	// Side channels count: constraints see tool-call payloads, not just turns.
	v := eval.ObserveContent(3, `{"patient":"Mia","ssn":"123-45-6789"}`)
	require.NotNil(t, v)
	assert.Equal(t, "no-pii-in-tools", v.Constraint.ID)
}
