package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dentix-ortho/agent-oracle/cmd/mainconfig"
	"github.com/dentix-ortho/agent-oracle/internal/api/router"
	appconfig "github.com/dentix-ortho/agent-oracle/internal/config"
	"github.com/dentix-ortho/agent-oracle/internal/http/handlers"
	"github.com/dentix-ortho/agent-oracle/internal/observability/metrics"
	"github.com/dentix-ortho/agent-oracle/internal/runner"
	"github.com/dentix-ortho/agent-oracle/internal/store"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agent-oracle API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	oracleMetrics := metrics.NewOracleMetrics(nil)

	// Persistence is optional; without a database the service still runs
	// scenarios and diagnoses sessions, it just keeps nothing.
	var (
		runStore      *store.Store
		scenarioStore handlers.ScenarioStore
		runReader     handlers.RunReader
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		runStore = store.New(pool)
		scenarioStore = runStore
		runReader = runStore
	}

	fetcher, err := mainconfig.BuildTraceFetcher(cfg, logger)
	if err != nil {
		logger.Error("failed to build trace fetcher", "error", err)
		os.Exit(1)
	}
	synth, err := mainconfig.BuildSynthesizer(cfg, logger)
	if err != nil {
		logger.Error("failed to build synthesizer", "error", err)
		os.Exit(1)
	}

	// The run launcher needs an agent endpoint; without one the admin run
	// endpoint reports itself unconfigured.
	var launcher handlers.RunLauncher
	if cfg.AgentEndpoint != "" {
		cls, err := mainconfig.BuildClassifier(ctx, cfg, oracleMetrics, logger)
		if err != nil {
			logger.Error("failed to build classifier", "error", err)
			os.Exit(1)
		}
		newExecutor, err := mainconfig.BuildExecutorFactory(cfg, cls, oracleMetrics, logger)
		if err != nil {
			logger.Error("failed to build simulator", "error", err)
			os.Exit(1)
		}
		opts := runner.Options{
			NewExecutor: newExecutor,
			Synthesizer: synth,
			Metrics:     oracleMetrics,
			Concurrency: cfg.WorkerCount,
			Logger:      logger,
		}
		if fetcher != nil {
			opts.Fetcher = fetcher
		}
		if runStore != nil {
			opts.Store = runStore
		}
		launcher = runner.New(opts)
	} else {
		logger.Warn("AGENT_ENDPOINT not set; run execution disabled")
	}

	var fetcherIface runner.TraceFetcher
	if fetcher != nil {
		fetcherIface = fetcher
	}
	oracleHandler := handlers.NewOracleHandler(scenarioStore, runReader, launcher, fetcherIface, synth, logger)

	var chatProxy *handlers.ChatProxyHandler
	if cfg.ChatProxyUpstream != "" {
		chatProxy = handlers.NewChatProxyHandler(cfg.ChatProxyUpstream, cfg.AgentTimeout, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Oracle:             oracleHandler,
		ChatProxy:          chatProxy,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRateLimitRPS:   cfg.ChatRateLimitRPS,
		ChatRateLimitBurst: cfg.ChatRateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		// Run execution is synchronous; a full scenario set can take minutes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
