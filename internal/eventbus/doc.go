/*
Package eventbus is the runtime's typed pub/sub hub.

Every component that needs to announce or react to a domain occurrence —
session lifecycle, agent switches, tool execution, approval decisions, LLM
streaming progress — publishes and subscribes through a single injected
*Bus instance. There is no package-level global: the composition root
constructs one Bus and wires it into every component that needs it.

# Topics

A subscription matches on a Topic, which is one of:

  - ForType(eventType)     — exactly one types.EventType
  - ForCategory(category)  — every event in a types.EventCategory
  - Everything()           — every event published on the bus

# Publish modes

Publish(ctx, event) is fire-and-forget: each matching handler runs in its
own goroutine and the caller does not wait. Use this for notifications
whose delivery latency must never block the publisher (e.g. streaming
progress ticks).

PublishAndWait(ctx, event) delivers to every matching handler, in priority
order, on the calling goroutine, returning only once all handlers have
run. Use this when the publisher's own correctness depends on handlers
having completed — for example, acknowledging an IDE frame only after the
persistence handler has durably written the corresponding message.

# Ordering

Handlers for a topic run in descending priority order; handlers at equal
priority run in the order they subscribed. This lets a component register
a low-priority audit-log handler that always observes an event after any
higher-priority handler that might veto or transform downstream state.

# Idempotent subscription

Subscribe takes an explicit subscriber id. Calling Subscribe again with an
id already registered for an equal topic is a no-op that returns the
existing unsubscribe function, rather than registering a second handler —
this matters for components (like the transport edge) that may re-run
their setup path after a reconnect.
*/
package eventbus
