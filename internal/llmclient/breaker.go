package llmclient

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerPolicy configures the per-provider circuit breaker spec.md §4.5
// requires: it opens after a run of consecutive failures and half-opens
// after a cooldown.
type BreakerPolicy struct {
	ConsecutiveFailureThreshold uint32
	CooldownInterval            time.Duration
}

// DefaultBreakerPolicy opens after 5 consecutive failures and half-opens
// after 30 seconds.
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{ConsecutiveFailureThreshold: 5, CooldownInterval: 30 * time.Second}
}

// breakerRegistry lazily creates one *gobreaker.CircuitBreaker[*CompletionStream]
// per provider ID, since spec.md §4.5 scopes the breaker to a provider, not
// to the whole Client.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*CompletionStream]
	policy   BreakerPolicy
	log      zerolog.Logger
}

func newBreakerRegistry(policy BreakerPolicy, log zerolog.Logger) *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker[*CompletionStream]), policy: policy, log: log}
}

func (r *breakerRegistry) get(providerID string) *gobreaker.CircuitBreaker[*CompletionStream] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[providerID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*CompletionStream](gobreaker.Settings{
		Name:        providerID,
		MaxRequests: 1,
		Timeout:     r.policy.CooldownInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.policy.ConsecutiveFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("llm circuit breaker state change")
		},
	})
	r.breakers[providerID] = cb
	return cb
}
