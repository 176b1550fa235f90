// Package config loads the runtime's env-var-driven configuration
// (spec.md §6: DB_URL, LLM_MODEL, USE_EVENT_DRIVEN_PERSISTENCE,
// MAX_CONCURRENT_REQUESTS, REQUEST_TIMEOUT, WS_HEARTBEAT_INTERVAL,
// INTERNAL_API_KEY, APPROVAL_DEFAULT_TIMEOUT_SECONDS,
// ORCHESTRATOR_MAX_ITERATIONS, LOG_LEVEL). A .env file in the working
// directory, if present, is loaded via godotenv before the environment is
// read, for local development convenience.
package config
