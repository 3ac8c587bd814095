package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentix-ortho/agent-oracle/internal/agent"
	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/goals"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

var tracer = otel.Tracer("oracle/simulator")

// AgentClient is the outbound surface the simulator needs from the agent
// under test.
type AgentClient interface {
	Ask(ctx context.Context, sessionID, question string) (*agent.Reply, error)
}

// UtteranceClassifier maps one agent utterance to a conversation-state result.
type UtteranceClassifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Result, error)
}

// Config bounds a run beyond what its test case declares. The caps here are
// safety nets applied only when the test case has no constraint of its own.
type Config struct {
	MaxTurns         int
	MaxTime          time.Duration
	UnhandledTurnCap int

	// Metrics is optional; a nil handle records nothing.
	Metrics *metrics.OracleMetrics
}

// Simulator drives one scripted persona through a conversation with the
// agent under test. One simulator instance serves one run at a time; runs
// never share mutable state.
type Simulator struct {
	agent      AgentClient
	classifier UtteranceClassifier
	cfg        Config
	logger     *logging.Logger
}

// New builds a simulator.
func New(agentClient AgentClient, cls UtteranceClassifier, cfg Config, logger *logging.Logger) *Simulator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	if cfg.MaxTime <= 0 {
		cfg.MaxTime = 5 * time.Minute
	}
	if cfg.UnhandledTurnCap <= 0 {
		cfg.UnhandledTurnCap = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Simulator{agent: agentClient, classifier: cls, cfg: cfg, logger: logger}
}

// Run executes one test case against the agent. A failed run is a verdict,
// not an error; the error return covers only an invalid test case.
func (s *Simulator) Run(ctx context.Context, tc scenario.TestCase) (*Verdict, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "simulator.run")
	defer span.End()
	span.SetAttributes(attribute.String("oracle.test_case", tc.ID))

	start := time.Now()
	v := &Verdict{TestCaseID: tc.ID, SessionID: uuid.NewString()}
	tracker := goals.NewTracker(tc.Goals)
	eval := goals.NewEvaluator(tc.Constraints)

	finish := func() *Verdict {
		v.Duration = time.Since(start)
		v.Goals = tracker.Statuses()
		v.Violations = eval.Violations()
		v.MissingGoalIDs = tracker.MissingRequiredGoalIDs()
		return v
	}
	// Deferred so the failure kind and reason are already set; fail() runs
	// on the verdict after finish() at every return site.
	defer func() {
		s.logger.Info("run finished",
			"test_case", tc.ID,
			"session_id", v.SessionID,
			"pass", v.Pass,
			"failure", string(v.Failure),
			"reason", v.Reason,
			"turns", v.Turns,
			"duration_ms", v.Duration.Milliseconds(),
		)
	}()

	// The config caps apply only when the test case declares none of its own,
	// so a scenario's explicit budget is never shadowed.
	var hasTurnCap, hasTimeCap bool
	for _, c := range tc.Constraints {
		switch c.Type {
		case scenario.ConstraintMaxTurns:
			hasTurnCap = true
		case scenario.ConstraintMaxTime:
			hasTimeCap = true
		}
	}

	question := tc.InitialUtterance
	msgIdx := 0

	for {
		// Cancellation is checked at the top of the loop so an in-flight
		// request is allowed to finish or time out, never torn down mid-turn.
		select {
		case <-ctx.Done():
			return finish().fail(FailureCanceled, fmt.Sprintf("run canceled: %v", ctx.Err())), nil
		default:
		}

		msgIdx++
		v.Transcript = append(v.Transcript, scenario.TurnView{
			Index:   msgIdx,
			Role:    "user",
			Content: question,
		})
		// The persona's outgoing content is history too; a must_not_happen
		// match here fails as fast as one on an agent turn.
		if violation := eval.ObserveContent(msgIdx, question); violation != nil {
			eval.Finalize(msgIdx)
			return finish().fail(FailureConstraintViolated,
				fmt.Sprintf("constraint %q violated: %s", violation.Constraint.ID, violation.Detail)), nil
		}

		reply, err := s.agent.Ask(ctx, v.SessionID, question)
		if err != nil {
			eval.Finalize(msgIdx)
			if errors.Is(err, agent.ErrTransport) {
				return finish().fail(FailureTransport, err.Error()), nil
			}
			return finish().fail(FailureTransport, fmt.Sprintf("agent call failed: %v", err)), nil
		}
		s.cfg.Metrics.ObserveAgentLatency(reply.Latency.Seconds())
		if reply.PayloadAnomaly != "" {
			v.PayloadAnomalies = append(v.PayloadAnomalies, reply.PayloadAnomaly)
		}

		res, err := s.classifier.Classify(ctx, classifier.Input{Utterance: reply.Spoken})
		if err != nil {
			// Tier 2 degraded to a low-confidence unknown. Recorded, not fatal.
			v.AmbiguousTurns++
		}

		msgIdx++
		v.Turns++
		view := scenario.TurnView{
			Index:            msgIdx,
			Role:             "assistant",
			Content:          reply.Spoken,
			Category:         res.Category,
			BookingConfirmed: res.BookingConfirmed,
		}
		v.Transcript = append(v.Transcript, view)
		tracker.RecordAssistantTurn(msgIdx, res, view)
		v.Progress = append(v.Progress, ProgressSnapshot{
			Turn:            v.Turns,
			Collected:       tracker.Snapshot(),
			MissingRequired: tracker.MissingRequiredGoalIDs(),
		})

		// Constraints see the raw reply, payload block included.
		if violation := eval.ObserveContent(msgIdx, reply.Text); violation != nil {
			v.TerminalCategory = res.Category
			eval.Finalize(msgIdx)
			return finish().fail(FailureConstraintViolated,
				fmt.Sprintf("constraint %q violated: %s", violation.Constraint.ID, violation.Detail)), nil
		}

		if isTerminal(res.Category, tc.TerminalCategories) {
			v.TerminalCategory = res.Category
			eval.Finalize(msgIdx)
			if !tracker.RequiredAchieved() {
				return finish().fail(FailureGoalUnmet,
					fmt.Sprintf("terminal state reached without required goals: %v", tracker.MissingRequiredGoalIDs())), nil
			}
			if pending := eval.Violations(); len(pending) > 0 {
				return finish().fail(FailureConstraintViolated,
					fmt.Sprintf("constraint %q violated: %s", pending[0].Constraint.ID, pending[0].Detail)), nil
			}
			v.Pass = true
			return finish(), nil
		}

		elapsed := time.Since(start)
		if violation := eval.CheckLimits(v.Turns, elapsed); violation != nil {
			eval.Finalize(msgIdx)
			return finish().fail(FailureConstraintViolated, violation.Detail), nil
		}
		if !hasTurnCap && v.Turns >= s.cfg.MaxTurns {
			eval.Finalize(msgIdx)
			return finish().fail(FailureConstraintViolated,
				fmt.Sprintf("max turns exceeded: default cap %d reached", s.cfg.MaxTurns)), nil
		}
		if !hasTimeCap && elapsed >= s.cfg.MaxTime {
			eval.Finalize(msgIdx)
			return finish().fail(FailureConstraintViolated,
				fmt.Sprintf("max time exceeded: default cap %s reached", s.cfg.MaxTime)), nil
		}

		next, handled := nextUserUtterance(res, tc.Persona, tracker.Snapshot(), v.UnhandledTurns)
		if !handled {
			v.UnhandledTurns++
			if v.UnhandledTurns > s.cfg.UnhandledTurnCap {
				eval.Finalize(msgIdx)
				return finish().fail(FailureInfrastructure,
					fmt.Sprintf("unhandled turn threshold exceeded: %d turns had no reply handler", v.UnhandledTurns)), nil
			}
			s.logger.Debug("no reply handler for category",
				"test_case", tc.ID,
				"category", string(res.Category),
				"unhandled_turns", v.UnhandledTurns,
			)
		}

		// The outgoing reply answers the agent turn just classified; record
		// any field it reveals before it is sent.
		tracker.RecordUserReply(msgIdx+1, res.Category, next, tc.Persona.Inventory)
		question = next
	}
}

func isTerminal(c classifier.Category, terminals []classifier.Category) bool {
	for _, t := range terminals {
		if c == t {
			return true
		}
	}
	return false
}
