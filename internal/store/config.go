package store

import "time"

// Config configures a Store's persistence behavior. The composition root
// derives BasePath and UseEventDrivenPersistence from internal/config
// (DB_URL, USE_EVENT_DRIVEN_PERSISTENCE); the other fields have no
// environment knob and are set directly.
type Config struct {
	// BasePath is the root directory the fileStore writes JSON records under.
	BasePath string

	// SessionAuditTTL is how long a soft-deleted session's record is kept
	// before Cleanup physically purges it. Open Question decision: a single
	// TTL from soft-delete time, default 720h (30 days).
	SessionAuditTTL time.Duration

	// UseEventDrivenPersistence selects the debounced writer when true.
	// Open Question decision: defaults false (immediate-by-default);
	// debounced persistence is opt-in.
	UseEventDrivenPersistence bool

	// DebounceWindow is how long the debounced writer waits after the last
	// append before flushing a session's pending messages.
	DebounceWindow time.Duration

	// DebounceMaxBatch forces a flush once this many messages have queued,
	// even if DebounceWindow hasn't elapsed.
	DebounceMaxBatch int
}

// DefaultConfig returns the Config spec.md §6 and SPEC_FULL.md §6 describe
// as defaults.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:                  basePath,
		SessionAuditTTL:           720 * time.Hour,
		UseEventDrivenPersistence: false,
		DebounceWindow:            2 * time.Second,
		DebounceMaxBatch:          50,
	}
}
