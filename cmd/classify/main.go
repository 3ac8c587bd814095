package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dentix-ortho/agent-oracle/cmd/mainconfig"
	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	appconfig "github.com/dentix-ortho/agent-oracle/internal/config"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// classify runs one agent utterance through the two-tier classifier. Handy
// for checking which tier and category a transcript line resolves to.
func main() {
	forceTier2 := flag.Bool("tier2", false, "skip tier 1 and classify with the LLM")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <utterance>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	utterance := strings.Join(flag.Args(), " ")

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cls, err := mainconfig.BuildClassifier(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("classifier setup failed", "error", err)
		os.Exit(2)
	}

	res, err := cls.Classify(ctx, classifier.Input{Utterance: utterance, ForceTier2: *forceTier2})
	if err != nil {
		logger.Warn("classification degraded", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"category":          res.Category,
		"tier":              res.Tier,
		"confidence":        res.Confidence,
		"booking_confirmed": res.BookingConfirmed,
	})
}
