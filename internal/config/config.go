// Package config loads the runtime's process configuration from environment
// variables, per spec.md §6. Unlike the teacher's layered JSONC project
// config, this runtime has no per-project config file: every knob is an
// env var, optionally supplied via a .env file for local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-variable-driven knob the runtime reads at
// startup. Fields map 1-1 to the env vars named in spec.md §6.
type Config struct {
	// DBURL is the Session Store connection string. Accepts both an
	// embedded engine DSN (e.g. "sqlite:///var/lib/runtime/state.db") and a
	// network engine DSN (e.g. "postgres://...").
	DBURL string

	// LLMModel is the default "provider/model" identifier used when an
	// agent definition carries no Model override.
	LLMModel string

	// UseEventDrivenPersistence switches the Session Store between
	// immediate and debounced message persistence for non-critical writes.
	UseEventDrivenPersistence bool

	// MaxConcurrentRequests is read from MAX_CONCURRENT_REQUESTS. No
	// component consumes it; the number of LLM completions in flight is not
	// limited by it.
	MaxConcurrentRequests int

	// RequestTimeout is read from REQUEST_TIMEOUT. No component consumes
	// it; LLM completion calls are not bounded by it.
	RequestTimeout time.Duration

	// WSHeartbeatInterval is the transport edge's ping interval.
	WSHeartbeatInterval time.Duration

	// InternalAPIKey, if set, is the shared secret the admin REST surface
	// accepts in place of a bearer JWT.
	InternalAPIKey string

	// ApprovalDefaultTimeout is how long a pending approval lives before
	// the sweep task expires it.
	ApprovalDefaultTimeout time.Duration

	// OrchestratorMaxIterations caps the LLM->tools loop per turn.
	OrchestratorMaxIterations int

	// LogLevel is parsed by internal/logging into a zerolog.Level.
	LogLevel string

	// PlanExecutionEnabled is read from PLAN_EXECUTION_ENABLED (SPEC_FULL.md
	// §3). No component consumes it; the runtime has no plan executor for
	// it to switch on.
	PlanExecutionEnabled bool
}

const (
	envDBURL                      = "DB_URL"
	envLLMModel                   = "LLM_MODEL"
	envUseEventDrivenPersistence  = "USE_EVENT_DRIVEN_PERSISTENCE"
	envMaxConcurrentRequests      = "MAX_CONCURRENT_REQUESTS"
	envRequestTimeout             = "REQUEST_TIMEOUT"
	envWSHeartbeatInterval        = "WS_HEARTBEAT_INTERVAL"
	envInternalAPIKey             = "INTERNAL_API_KEY"
	envApprovalDefaultTimeoutSecs = "APPROVAL_DEFAULT_TIMEOUT_SECONDS"
	envOrchestratorMaxIterations  = "ORCHESTRATOR_MAX_ITERATIONS"
	envLogLevel                   = "LOG_LEVEL"
	envPlanExecutionEnabled       = "PLAN_EXECUTION_ENABLED"
)

// Defaults, used whenever the corresponding env var is unset or unparsable.
const (
	DefaultDBURL                   = "sqlite://./runtime.db"
	DefaultLLMModel                = "anthropic/claude-sonnet-4-20250514"
	DefaultMaxConcurrentRequests   = 16
	DefaultRequestTimeout          = 60 * time.Second
	DefaultWSHeartbeatInterval     = 30 * time.Second
	DefaultApprovalTimeoutSeconds  = 300
	DefaultOrchestratorMaxIterations = 10
	DefaultLogLevel                = "info"
)

// Load reads a .env file at dir (if present; its absence is not an error)
// via godotenv, then builds a Config from the process environment.
func Load(dir string) (*Config, error) {
	if dir != "" {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{
		DBURL:                     getString(envDBURL, DefaultDBURL),
		LLMModel:                  getString(envLLMModel, DefaultLLMModel),
		UseEventDrivenPersistence: getBool(envUseEventDrivenPersistence, false),
		MaxConcurrentRequests:     getInt(envMaxConcurrentRequests, DefaultMaxConcurrentRequests),
		RequestTimeout:            getDuration(envRequestTimeout, DefaultRequestTimeout),
		WSHeartbeatInterval:       getDuration(envWSHeartbeatInterval, DefaultWSHeartbeatInterval),
		InternalAPIKey:            getString(envInternalAPIKey, ""),
		ApprovalDefaultTimeout:    time.Duration(getInt(envApprovalDefaultTimeoutSecs, DefaultApprovalTimeoutSeconds)) * time.Second,
		OrchestratorMaxIterations: getInt(envOrchestratorMaxIterations, DefaultOrchestratorMaxIterations),
		LogLevel:                  getString(envLogLevel, DefaultLogLevel),
		PlanExecutionEnabled:      getBool(envPlanExecutionEnabled, false),
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getDuration parses key as a duration string (e.g. "30s"); if that fails
// it retries as a bare integer number of seconds before falling back to def.
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
