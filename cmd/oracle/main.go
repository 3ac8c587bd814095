package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dentix-ortho/agent-oracle/cmd/mainconfig"
	appconfig "github.com/dentix-ortho/agent-oracle/internal/config"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/internal/runner"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
	"github.com/dentix-ortho/agent-oracle/internal/store"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

const timeRounding = 10 * time.Millisecond

type cliOptions struct {
	selector    string
	concurrency int
	jsonOut     bool
}

// parseArgs accepts the optional "run" verb followed by the run flags. Any
// other leading word is an unknown command, and trailing positionals are
// rejected so a mistyped invocation never silently runs every scenario.
func parseArgs(args []string) (cliOptions, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if args[0] != "run" {
			return cliOptions{}, fmt.Errorf("unknown command %q (expected \"run\")", args[0])
		}
		args = args[1:]
	}

	var opts cliOptions
	fs := flag.NewFlagSet("oracle", flag.ContinueOnError)
	fs.StringVar(&opts.selector, "scenarios", "all", "comma-separated scenario ids, or \"all\"")
	fs.IntVar(&opts.concurrency, "n", 0, "worker count (defaults to WORKER_COUNT)")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the full report as JSON")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return opts, nil
}

// oracle runs booking-agent test scenarios from the command line and exits
// nonzero when any selected scenario fails.
func main() {
	cli, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cases, err := loadCases(cfg)
	if err != nil {
		logger.Error("scenario load failed", "error", err)
		os.Exit(2)
	}
	selected := scenario.Select(cases, cli.selector)
	if len(selected) == 0 {
		logger.Error("no scenarios match selector", "selector", cli.selector)
		os.Exit(2)
	}

	oracleMetrics := metrics.NewOracleMetrics(nil)
	cls, err := mainconfig.BuildClassifier(ctx, cfg, oracleMetrics, logger)
	if err != nil {
		logger.Error("classifier setup failed", "error", err)
		os.Exit(2)
	}
	newExecutor, err := mainconfig.BuildExecutorFactory(cfg, cls, oracleMetrics, logger)
	if err != nil {
		logger.Error("simulator setup failed", "error", err)
		os.Exit(2)
	}
	fetcher, err := mainconfig.BuildTraceFetcher(cfg, logger)
	if err != nil {
		logger.Error("trace fetcher setup failed", "error", err)
		os.Exit(2)
	}
	synth, err := mainconfig.BuildSynthesizer(cfg, logger)
	if err != nil {
		logger.Error("synthesizer setup failed", "error", err)
		os.Exit(2)
	}

	opts := runner.Options{
		NewExecutor: newExecutor,
		Synthesizer: synth,
		Metrics:     oracleMetrics,
		Concurrency: cfg.WorkerCount,
		Logger:      logger,
	}
	if cli.concurrency > 0 {
		opts.Concurrency = cli.concurrency
	}
	if fetcher != nil {
		opts.Fetcher = fetcher
	}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(2)
		}
		defer pool.Close()
		opts.Store = store.New(pool)
	}

	report := runner.New(opts).Execute(ctx, selected)

	if cli.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printReport(report)
	}

	if !report.AllPassed() {
		os.Exit(1)
	}
}

// loadCases merges the builtin scenario set with any JSON definitions found
// under SCENARIO_DIR. Directory scenarios win on id collisions.
func loadCases(cfg *appconfig.Config) ([]scenario.TestCase, error) {
	cases := scenario.Builtin()
	if cfg.ScenarioDir == "" {
		return cases, nil
	}
	loaded, err := scenario.LoadDir(cfg.ScenarioDir)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(cases))
	for i, tc := range cases {
		byID[tc.ID] = i
	}
	for _, tc := range loaded {
		if i, ok := byID[tc.ID]; ok {
			cases[i] = tc
			continue
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func printReport(report *runner.Report) {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("ERROR  %v\n", res.Err)
			continue
		}
		v := res.Verdict
		if v.Pass {
			fmt.Printf("PASS   %-32s %d turns in %s\n", v.TestCaseID, v.Turns, v.Duration.Round(timeRounding))
			continue
		}
		fmt.Printf("FAIL   %-32s [%s] %s\n", v.TestCaseID, v.Failure, v.Reason)
		if res.Diagnosis != nil && res.Diagnosis.Primary != nil {
			p := res.Diagnosis.Primary
			fmt.Printf("       root cause: %s (confidence %.2f)\n", p.Code, p.Confidence)
			fmt.Printf("       remediation: %s\n", res.Diagnosis.Remediation)
		}
	}
	fmt.Printf("\n%d scenarios: %d passed, %d failed (%s)\n",
		report.Total, report.Passed, report.Failed, report.Duration.Round(timeRounding))
}
