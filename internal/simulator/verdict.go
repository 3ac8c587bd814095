package simulator

import (
	"time"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/goals"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

// FailureKind names why a run failed. Transport failures are kept distinct
// from goal failures so flaky infrastructure never reads as an agent defect.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureTransport          FailureKind = "transport_error"
	FailureGoalUnmet          FailureKind = "goal_unmet"
	FailureConstraintViolated FailureKind = "constraint_violated"
	FailureInfrastructure     FailureKind = "infrastructure_error"
	FailureCanceled           FailureKind = "canceled"
)

// ProgressSnapshot is the goal state after one classified agent turn.
type ProgressSnapshot struct {
	Turn            int                         `json:"turn"`
	Collected       map[string]goals.FieldState `json:"collected,omitempty"`
	MissingRequired []string                    `json:"missing_required,omitempty"`
}

// Verdict is the outcome of one simulated run against the agent.
type Verdict struct {
	TestCaseID string      `json:"test_case_id"`
	SessionID  string      `json:"session_id"`
	Pass       bool        `json:"pass"`
	Failure    FailureKind `json:"failure,omitempty"`
	Reason     string      `json:"reason,omitempty"`

	TerminalCategory classifier.Category `json:"terminal_category,omitempty"`
	Turns            int                 `json:"turns"`
	UnhandledTurns   int                 `json:"unhandled_turns"`
	AmbiguousTurns   int                 `json:"ambiguous_turns"`
	Duration         time.Duration       `json:"duration"`

	Goals          []goals.GoalStatus  `json:"goals"`
	MissingGoalIDs []string            `json:"missing_goal_ids,omitempty"`
	Violations     []goals.Violation   `json:"violations,omitempty"`
	Transcript     []scenario.TurnView `json:"transcript"`
	Progress       []ProgressSnapshot  `json:"progress,omitempty"`

	// PayloadAnomalies records structured blocks that failed to parse. They
	// are classification-input anomalies, never fatal.
	PayloadAnomalies []string `json:"payload_anomalies,omitempty"`
}

func (v *Verdict) fail(kind FailureKind, reason string) *Verdict {
	v.Pass = false
	v.Failure = kind
	v.Reason = reason
	return v
}
