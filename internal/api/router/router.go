package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dentix-ortho/agent-oracle/internal/http/handlers"
	httpmiddleware "github.com/dentix-ortho/agent-oracle/internal/http/middleware"
	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Oracle             *handlers.OracleHandler
	ChatProxy          *handlers.ChatProxyHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health, metrics, browser chat proxy)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ChatProxy != nil {
			rps, burst := cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst
			if rps <= 0 {
				rps = 2
			}
			if burst <= 0 {
				burst = 5
			}
			public.With(httpmiddleware.RateLimit(rps, burst)).Post("/api/chat", cfg.ChatProxy.Handle)
		}
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" && cfg.Oracle != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/scenarios", cfg.Oracle.CreateScenario)
			admin.Get("/scenarios", cfg.Oracle.ListScenarios)
			admin.Get("/scenarios/{id}", cfg.Oracle.GetScenario)
			admin.Post("/runs", cfg.Oracle.ExecuteRuns)
			admin.Get("/runs/{id}", cfg.Oracle.GetRun)
			admin.Get("/diagnosis/{sessionID}", cfg.Oracle.DiagnoseSession)
		})
	}

	return r
}
