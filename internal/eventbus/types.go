package eventbus

import "github.com/agentrt/runtime/pkg/types"

// Handler receives a published event. No bus lock is held while a handler
// runs, so a handler may publish on the same Bus: a nested PublishAndWait
// delivers the inner event to all its subscribers before the outer
// delivery moves on to its next handler.
type Handler func(types.Event)

// Middleware wraps a Handler, e.g. for recovery, tracing, or logging.
// Middlewares are applied in registration order: the first registered
// middleware is the outermost wrapper.
type Middleware func(Handler) Handler

// Topic is what a subscription matches against: either a single concrete
// EventType, a whole EventCategory, or the wildcard "*" for every event.
type Topic struct {
	Type     types.EventType
	Category types.EventCategory
	Wildcard bool
}

// ForType subscribes to exactly one event type.
func ForType(t types.EventType) Topic { return Topic{Type: t} }

// ForCategory subscribes to every event in a category.
func ForCategory(c types.EventCategory) Topic { return Topic{Category: c} }

// Everything subscribes to every event published on the bus.
func Everything() Topic { return Topic{Wildcard: true} }

func (t Topic) matches(e types.Event) bool {
	if t.Wildcard {
		return true
	}
	if t.Category != "" && e.EventCategory == t.Category {
		return true
	}
	if t.Type != "" && e.EventType == t.Type {
		return true
	}
	return false
}

// Stats holds the per-bus run counters exposed to internal/metrics.
type Stats struct {
	Published     uint64
	Succeeded     uint64
	Failed        uint64
	LastEventUnix int64
}
