package mainconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/dentix-ortho/agent-oracle/internal/agent"
	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	appconfig "github.com/dentix-ortho/agent-oracle/internal/config"
	"github.com/dentix-ortho/agent-oracle/internal/diagnosis"
	"github.com/dentix-ortho/agent-oracle/internal/llm"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/internal/pms"
	"github.com/dentix-ortho/agent-oracle/internal/runner"
	"github.com/dentix-ortho/agent-oracle/internal/simulator"
	"github.com/dentix-ortho/agent-oracle/internal/trace"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// BuildClassifier wires the two-tier classifier from configuration. Tier 2
// requires Bedrock; the Redis cache is attached only when enabled.
func BuildClassifier(ctx context.Context, cfg *appconfig.Config, m *metrics.OracleMetrics, logger *logging.Logger) (*classifier.Classifier, error) {
	clsCfg := classifier.Config{
		EnableTier2:  cfg.EnableTier2,
		Model:        cfg.BedrockModelID,
		Tier2Timeout: cfg.Tier2Timeout,
		MaxTokens:    int32(cfg.Tier2MaxTokens),
		Metrics:      m,
	}

	var llmClient llm.Client
	if cfg.EnableTier2 {
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("mainconfig: tier 2 enabled but BEDROCK_MODEL_ID is empty")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mainconfig: load aws config: %w", err)
		}
		llmClient = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var cache *classifier.Cache
	if cfg.ClassifierCache {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = classifier.NewCache(redis.NewClient(opts), cfg.CacheTTL, logger)
	}

	return classifier.New(llmClient, cache, clsCfg, logger), nil
}

// BuildExecutorFactory returns a factory that gives each runner worker its
// own simulator over a shared agent client and classifier.
func BuildExecutorFactory(cfg *appconfig.Config, cls *classifier.Classifier, m *metrics.OracleMetrics, logger *logging.Logger) (func() runner.RunExecutor, error) {
	agentClient, err := agent.NewClient(agent.Config{
		Endpoint:      cfg.AgentEndpoint,
		Timeout:       cfg.AgentTimeout,
		RetryMax:      cfg.AgentRetryMax,
		RetryDelay:    cfg.AgentRetryDelay,
		PayloadMarker: cfg.PayloadMarker,
	})
	if err != nil {
		return nil, err
	}

	simCfg := simulator.Config{
		MaxTurns:         cfg.DefaultMaxTurns,
		MaxTime:          cfg.DefaultMaxTime,
		UnhandledTurnCap: cfg.UnhandledTurnCap,
		Metrics:          m,
	}
	return func() runner.RunExecutor {
		return simulator.New(agentClient, cls, simCfg, logger)
	}, nil
}

// BuildTraceFetcher returns a Langfuse client, or nil when no credentials
// are configured. Runs still execute without one; diagnosis degrades to
// insufficient evidence.
func BuildTraceFetcher(cfg *appconfig.Config, logger *logging.Logger) (*trace.LangfuseClient, error) {
	if strings.TrimSpace(cfg.LangfusePublicKey) == "" || strings.TrimSpace(cfg.LangfuseSecretKey) == "" {
		return nil, nil
	}
	return trace.NewLangfuseClient(trace.LangfuseConfig{
		BaseURL:   cfg.LangfuseBaseURL,
		PublicKey: cfg.LangfusePublicKey,
		SecretKey: cfg.LangfuseSecretKey,
		Timeout:   cfg.LangfuseTimeout,
	}, logger)
}

// BuildSynthesizer wires the root-cause synthesizer. The Chord verifier is
// attached only when the practice-management system is configured; findings
// that need verification are then reported unverified.
func BuildSynthesizer(cfg *appconfig.Config, logger *logging.Logger) (*diagnosis.Synthesizer, error) {
	var verifier diagnosis.SlotVerifier
	if strings.TrimSpace(cfg.ChordBaseURL) != "" {
		chord, err := pms.NewClient(pms.Config{
			BaseURL:  cfg.ChordBaseURL,
			ClientID: cfg.ChordClientID,
			Username: cfg.ChordUsername,
			Password: cfg.ChordPassword,
			Timeout:  cfg.ChordTimeout,
		})
		if err != nil {
			return nil, err
		}
		verifier = chord
	}
	return diagnosis.NewSynthesizer(verifier, cfg.VerifyTimeout, logger), nil
}
