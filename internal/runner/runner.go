package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/simulator"
	"github.com/dentix-ortho/agent-oracle/internal/trace"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// RunExecutor executes one test case. Each worker owns its own executor so
// runs never share mutable state.
type RunExecutor interface {
	Run(ctx context.Context, tc scenario.TestCase) (*simulator.Verdict, error)
}

// TraceFetcher pulls a session's trace history after the run completes.
type TraceFetcher interface {
	FetchBundle(ctx context.Context, sessionID string) trace.Bundle
}

// RunStore persists run artifacts. Optional; a nil store skips persistence.
type RunStore interface {
	InsertRun(ctx context.Context, scenarioID string, v *simulator.Verdict) (uuid.UUID, error)
	InsertToolCalls(ctx context.Context, runID uuid.UUID, bundle trace.Bundle) error
	InsertFindings(ctx context.Context, runID uuid.UUID, findings []diagnosis.Finding, unverified bool) error
}

// Result is one run's verdict plus, for failed runs, its diagnosis.
type Result struct {
	Verdict   *simulator.Verdict   `json:"verdict"`
	Diagnosis *diagnosis.Diagnosis `json:"diagnosis,omitempty"`
	RunID     uuid.UUID            `json:"run_id,omitempty"`
	Err       error                `json:"-"`
}

// Report aggregates one execution of a scenario set.
type Report struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`
}

// AllPassed reports whether every selected run passed.
func (r *Report) AllPassed() bool {
	return r.Total > 0 && r.Failed == 0
}

// Options wires the runner's collaborators. Only NewExecutor is required.
type Options struct {
	NewExecutor func() RunExecutor
	Fetcher     TraceFetcher
	Synthesizer *diagnosis.Synthesizer
	Store       RunStore
	Metrics     *metrics.OracleMetrics
	Concurrency int
	Logger      *logging.Logger
}

// Runner executes test cases as independent worker tasks up to a configured
// concurrency limit.
type Runner struct {
	opts Options
}

// New builds a runner.
func New(opts Options) *Runner {
	if opts.NewExecutor == nil {
		panic("runner: executor factory required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Runner{opts: opts}
}

// Execute runs every test case and aggregates the verdicts. Result order
// matches input order regardless of worker interleaving.
func (r *Runner) Execute(ctx context.Context, cases []scenario.TestCase) *Report {
	start := time.Now()
	report := &Report{Total: len(cases), Results: make([]Result, len(cases))}
	if len(cases) == 0 {
		report.Duration = time.Since(start)
		return report
	}

	workers := r.opts.Concurrency
	if workers > len(cases) {
		workers = len(cases)
	}

	type job struct {
		idx int
		tc  scenario.TestCase
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor := r.opts.NewExecutor()
			for j := range jobs {
				report.Results[j.idx] = r.runOne(ctx, executor, j.tc)
			}
		}()
	}

	for i, tc := range cases {
		jobs <- job{idx: i, tc: tc}
	}
	close(jobs)
	wg.Wait()

	for _, res := range report.Results {
		if res.Verdict != nil && res.Verdict.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	report.Duration = time.Since(start)
	return report
}

func (r *Runner) runOne(ctx context.Context, executor RunExecutor, tc scenario.TestCase) Result {
	verdict, err := executor.Run(ctx, tc)
	if err != nil {
		r.opts.Logger.Error("run rejected", "test_case", tc.ID, "error", err)
		return Result{Err: err}
	}

	outcome := "fail"
	if verdict.Pass {
		outcome = "pass"
	}
	r.opts.Metrics.ObserveRun(tc.ID, outcome, verdict.Duration.Seconds())

	res := Result{Verdict: verdict}

	var bundle trace.Bundle
	if r.opts.Fetcher != nil {
		bundle = r.opts.Fetcher.FetchBundle(ctx, verdict.SessionID)
	} else {
		bundle = trace.Bundle{SessionID: verdict.SessionID}
	}

	// Failed runs get a diagnosis; passing runs only carry their trace.
	if !verdict.Pass && r.opts.Synthesizer != nil {
		findings := diagnosis.Detect(ctx, bundle)
		for _, f := range findings {
			r.opts.Metrics.ObserveDetection(string(f.Code))
		}
		d := r.opts.Synthesizer.Synthesize(ctx, bundle, findings)
		res.Diagnosis = &d
	}

	if r.opts.Store != nil {
		runID, err := r.opts.Store.InsertRun(ctx, tc.ID, verdict)
		if err != nil {
			r.opts.Logger.Error("run persistence failed", "test_case", tc.ID, "error", err)
			return res
		}
		res.RunID = runID
		if !bundle.Unavailable && !bundle.Empty() {
			if err := r.opts.Store.InsertToolCalls(ctx, runID, bundle); err != nil {
				r.opts.Logger.Error("tool call persistence failed", "run_id", runID, "error", err)
			}
		}
		if res.Diagnosis != nil && len(res.Diagnosis.Findings) > 0 {
			if err := r.opts.Store.InsertFindings(ctx, runID, res.Diagnosis.Findings, res.Diagnosis.Unverified); err != nil {
				r.opts.Logger.Error("finding persistence failed", "run_id", runID, "error", err)
			}
		}
	}
	return res
}
