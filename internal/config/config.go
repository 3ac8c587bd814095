package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	// Agent under test (Flowise prediction endpoint)
	AgentEndpoint     string
	AgentTimeout      time.Duration
	AgentRetryMax     int
	AgentRetryDelay   time.Duration
	PayloadMarker     string
	ChatProxyUpstream string

	// Langfuse observability store
	LangfuseBaseURL   string
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseTimeout   time.Duration

	// Chord practice-management system of record
	ChordBaseURL  string
	ChordClientID string
	ChordUsername string
	ChordPassword string
	ChordTimeout  time.Duration

	// Tier 2 classifier
	EnableTier2      bool
	BedrockModelID   string
	Tier2Timeout     time.Duration
	Tier2MaxTokens   int
	ClassifierCache  bool
	CacheTTL         time.Duration
	AWSRegion        string
	AWSAccessKeyID   string
	AWSSecretKey     string
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool

	// Run limits
	WorkerCount       int
	DefaultMaxTurns   int
	DefaultMaxTime    time.Duration
	UnhandledTurnCap  int
	VerifyTimeout     time.Duration
	AdminJWTSecret    string
	ScenarioDir       string

	CORSAllowedOrigins []string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AgentEndpoint:     getEnv("AGENT_ENDPOINT", ""),
		AgentTimeout:      getEnvAsDuration("AGENT_TIMEOUT", 60*time.Second),
		AgentRetryMax:     getEnvAsInt("AGENT_RETRY_MAX", 2),
		AgentRetryDelay:   getEnvAsDuration("AGENT_RETRY_DELAY", 2*time.Second),
		PayloadMarker:     getEnv("PAYLOAD_MARKER", "PAYLOAD:"),
		ChatProxyUpstream: getEnv("CHAT_PROXY_UPSTREAM", ""),

		LangfuseBaseURL:   getEnv("LANGFUSE_BASE_URL", "https://cloud.langfuse.com"),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseTimeout:   getEnvAsDuration("LANGFUSE_TIMEOUT", 20*time.Second),

		ChordBaseURL:  getEnv("CHORD_BASE_URL", ""),
		ChordClientID: getEnv("CHORD_CLIENT_ID", ""),
		ChordUsername: getEnv("CHORD_USERNAME", ""),
		ChordPassword: getEnv("CHORD_PASSWORD", ""),
		ChordTimeout:  getEnvAsDuration("CHORD_TIMEOUT", 15*time.Second),

		EnableTier2:     getEnvAsBool("ENABLE_TIER2", true),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		Tier2Timeout:    getEnvAsDuration("TIER2_TIMEOUT", 10*time.Second),
		Tier2MaxTokens:  getEnvAsInt("TIER2_MAX_TOKENS", 100),
		ClassifierCache: getEnvAsBool("CLASSIFIER_CACHE", false),
		CacheTTL:        getEnvAsDuration("CLASSIFIER_CACHE_TTL", 24*time.Hour),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:  getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),

		WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),
		DefaultMaxTurns:  getEnvAsInt("DEFAULT_MAX_TURNS", 20),
		DefaultMaxTime:   getEnvAsDuration("DEFAULT_MAX_TIME", 5*time.Minute),
		UnhandledTurnCap: getEnvAsInt("UNHANDLED_TURN_CAP", 3),
		VerifyTimeout:    getEnvAsDuration("VERIFY_TIMEOUT", 10*time.Second),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		ScenarioDir:      getEnv("SCENARIO_DIR", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ChatRateLimitRPS:   getEnvAsFloat("CHAT_RATE_LIMIT_RPS", 2),
		ChatRateLimitBurst: getEnvAsInt("CHAT_RATE_LIMIT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
