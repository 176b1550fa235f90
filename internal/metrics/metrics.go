// Package metrics exposes the admin REST surface's GET /events/metrics and
// GET /events/audit-log (spec.md §6). A Collector subscribes to the
// runtime's event bus as a low-priority, always-observing handler (spec.md
// §9's "audit-log handler that always observes an event after any
// mutating handler") and records both Prometheus counters and a bounded
// in-memory audit log.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/pkg/types"
)

// AuditEntry is one observed event, trimmed to what the admin surface
// needs to display.
type AuditEntry struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	EventCategory string         `json:"event_category"`
	SessionID     string         `json:"session_id,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// DefaultAuditLogSize bounds the in-memory audit ring buffer.
const DefaultAuditLogSize = 1000

// Collector subscribes to an eventbus.Bus and records both Prometheus
// counters (exposed at GET /events/metrics via its Registry) and a bounded
// audit log (exposed at GET /events/audit-log).
type Collector struct {
	registry       *prometheus.Registry
	eventsTotal    *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	approvalsTotal *prometheus.CounterVec

	mu   sync.Mutex
	ring []AuditEntry
	head int
	size int
	cap  int
}

// NewCollector constructs a Collector and registers its metrics against reg.
func NewCollector(reg *prometheus.Registry, ringCapacity int) *Collector {
	if ringCapacity <= 0 {
		ringCapacity = DefaultAuditLogSize
	}
	c := &Collector{
		registry: reg,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runtime",
			Name:      "events_total",
			Help:      "Events published on the event bus, by type.",
		}, []string{"event_type"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runtime",
			Name:      "tool_calls_total",
			Help:      "Tool call outcomes, by outcome.",
		}, []string{"outcome"}),
		approvalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runtime",
			Name:      "approvals_total",
			Help:      "Approval decisions, by outcome.",
		}, []string{"outcome"}),
		ring: make([]AuditEntry, ringCapacity),
		cap:  ringCapacity,
	}
	reg.MustRegister(c.eventsTotal, c.toolCallsTotal, c.approvalsTotal)
	return c
}

// Registry returns the Prometheus registry metrics were registered
// against, for mounting promhttp.HandlerFor in the admin REST surface.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the Collector to bus at the lowest priority so it
// observes every event after any mutating handler has run.
func (c *Collector) Attach(bus *eventbus.Bus) func() {
	return bus.Subscribe("metrics-collector", eventbus.Everything(), -100, c.observe)
}

func (c *Collector) observe(e types.Event) {
	c.eventsTotal.WithLabelValues(string(e.EventType)).Inc()

	switch e.EventType {
	case types.EventToolCallFinished:
		outcome := "success"
		if v, ok := e.Payload["error"]; ok && v != nil && v != "" {
			outcome = "error"
		}
		c.toolCallsTotal.WithLabelValues(outcome).Inc()
	case types.EventApprovalDecided:
		outcome := "unknown"
		if v, ok := e.Payload["status"].(types.ApprovalStatus); ok {
			outcome = string(v)
		} else if v, ok := e.Payload["status"].(string); ok {
			outcome = v
		}
		c.approvalsTotal.WithLabelValues(outcome).Inc()
	}

	c.append(AuditEntry{
		EventID:       e.EventID,
		EventType:     string(e.EventType),
		EventCategory: string(e.EventCategory),
		SessionID:     e.SessionID,
		Timestamp:     e.Timestamp,
		Payload:       e.Payload,
	})
}

func (c *Collector) append(entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring[c.head] = entry
	c.head = (c.head + 1) % c.cap
	if c.size < c.cap {
		c.size++
	}
}

// AuditLog returns up to limit of the most recently observed entries,
// newest first. limit<=0 returns every retained entry.
func (c *Collector) AuditLog(limit int) []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > c.size {
		limit = c.size
	}
	out := make([]AuditEntry, 0, limit)
	idx := (c.head - 1 + c.cap) % c.cap
	for i := 0; i < limit; i++ {
		out = append(out, c.ring[idx])
		idx = (idx - 1 + c.cap) % c.cap
	}
	return out
}
