package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/simulator"
	"github.com/dentix-ortho/agent-oracle/internal/trace"
)

type fakeExecutor struct {
	mu      sync.Mutex
	failIDs map[string]bool
	seen    []string
}

func (f *fakeExecutor) Run(_ context.Context, tc scenario.TestCase) (*simulator.Verdict, error) {
	f.mu.Lock()
	f.seen = append(f.seen, tc.ID)
	f.mu.Unlock()

	if tc.ID == "reject" {
		return nil, errors.New("invalid test case")
	}
	v := &simulator.Verdict{TestCaseID: tc.ID, SessionID: "sess-" + tc.ID, Pass: !f.failIDs[tc.ID]}
	if !v.Pass {
		v.Failure = simulator.FailureGoalUnmet
	}
	return v, nil
}

func caseNamed(id string) scenario.TestCase {
	return scenario.TestCase{
		ID:               id,
		Persona:          scenario.Persona{Name: "p"},
		Goals:            []scenario.Goal{{ID: "g", Type: scenario.GoalBookingConfirmed, Required: true}},
		InitialUtterance: "hi",
	}
}

type fakeFetcher struct {
	bundles map[string]trace.Bundle
}

func (f *fakeFetcher) FetchBundle(_ context.Context, sessionID string) trace.Bundle {
	if b, ok := f.bundles[sessionID]; ok {
		return b
	}
	return trace.Bundle{SessionID: sessionID, Unavailable: true, UnavailableReason: "no fixture"}
}

func TestExecutePreservesInputOrder(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(Options{
		NewExecutor: func() RunExecutor { return exec },
		Concurrency: 3,
	})

	cases := []scenario.TestCase{caseNamed("a"), caseNamed("b"), caseNamed("c"), caseNamed("d")}
	report := r.Execute(context.Background(), cases)

	require.Len(t, report.Results, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		require.NotNil(t, report.Results[i].Verdict)
		assert.Equal(t, want, report.Results[i].Verdict.TestCaseID)
	}
	assert.Equal(t, 4, report.Passed)
	assert.True(t, report.AllPassed())
}

func TestExecuteCountsFailures(t *testing.T) {
	exec := &fakeExecutor{failIDs: map[string]bool{"b": true}}
	r := New(Options{
		NewExecutor: func() RunExecutor { return exec },
		Concurrency: 1,
	})

	report := r.Execute(context.Background(), []scenario.TestCase{caseNamed("a"), caseNamed("b")})
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.AllPassed())
}

func TestExecutorErrorCountsAsFailure(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(Options{
		NewExecutor: func() RunExecutor { return exec },
	})

	report := r.Execute(context.Background(), []scenario.TestCase{caseNamed("reject")})
	assert.Equal(t, 1, report.Failed)
	assert.Error(t, report.Results[0].Err)
	assert.False(t, report.AllPassed())
}

func TestFailedRunsGetDiagnosed(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{failIDs: map[string]bool{"broken": true}}
	fetcher := &fakeFetcher{bundles: map[string]trace.Bundle{
		"sess-broken": {
			SessionID: "sess-broken",
			ToolCalls: []trace.ToolCallRecord{
				{Tool: "schedule_appointment_ortho", Input: `{"patient":"Mia"}`,
					Status: trace.StatusError, Error: "unauthorized", StartTime: t0},
			},
		},
	}}

	r := New(Options{
		NewExecutor: func() RunExecutor { return exec },
		Fetcher:     fetcher,
		Synthesizer: diagnosis.NewSynthesizer(nil, 0, nil),
	})

	report := r.Execute(context.Background(), []scenario.TestCase{caseNamed("broken"), caseNamed("fine")})

	broken := report.Results[0]
	require.NotNil(t, broken.Diagnosis)
	require.NotNil(t, broken.Diagnosis.Primary)
	assert.Equal(t, diagnosis.CodeMissingAuthToken, broken.Diagnosis.Primary.Code)

	assert.Nil(t, report.Results[1].Diagnosis, "passing runs are not diagnosed")
}

func TestUnreachableStoreYieldsInsufficientEvidence(t *testing.T) {
	exec := &fakeExecutor{failIDs: map[string]bool{"a": true}}
	r := New(Options{
		NewExecutor: func() RunExecutor { return exec },
		Fetcher:     &fakeFetcher{},
		Synthesizer: diagnosis.NewSynthesizer(nil, 0, nil),
	})

	report := r.Execute(context.Background(), []scenario.TestCase{caseNamed("a")})
	d := report.Results[0].Diagnosis
	require.NotNil(t, d)
	assert.True(t, d.InsufficientEvidence)
	assert.Nil(t, d.Primary)
}

func TestEmptyCaseListNeverPasses(t *testing.T) {
	r := New(Options{NewExecutor: func() RunExecutor { return &fakeExecutor{} }})
	report := r.Execute(context.Background(), nil)
	assert.False(t, report.AllPassed())
	assert.Zero(t, report.Total)
}
