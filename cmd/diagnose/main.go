package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dentix-ortho/agent-oracle/cmd/mainconfig"
	appconfig "github.com/dentix-ortho/agent-oracle/internal/config"
	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// diagnose pulls one session's trace from Langfuse and prints its root-cause
// report. Useful for sessions that failed outside a scenario run.
func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <session-id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	sessionID := flag.Arg(0)

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	fetcher, err := mainconfig.BuildTraceFetcher(cfg, logger)
	if err != nil {
		logger.Error("trace fetcher setup failed", "error", err)
		os.Exit(2)
	}
	if fetcher == nil {
		logger.Error("LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are required")
		os.Exit(2)
	}
	synth, err := mainconfig.BuildSynthesizer(cfg, logger)
	if err != nil {
		logger.Error("synthesizer setup failed", "error", err)
		os.Exit(2)
	}

	bundle := fetcher.FetchBundle(ctx, sessionID)
	findings := diagnosis.Detect(ctx, bundle)
	d := synth.Synthesize(ctx, bundle, findings)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		logger.Error("encode diagnosis", "error", err)
		os.Exit(2)
	}
	if d.InsufficientEvidence {
		os.Exit(1)
	}
}
