// Package eventbus is the typed pub/sub hub all runtime components publish
// domain events onto and subscribe to. It is built on watermill's gochannel
// for the underlying transport, with a direct-call dispatch layer on top
// that preserves typed types.Event values and adds priority ordering,
// category/wildcard topics, middleware, and two publish modes.
package eventbus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/pkg/types"
)

// subscription is one registered handler.
//
// Ordering invariant: Publish/PublishAndWait deliver to matching
// subscriptions sorted by Priority descending, breaking ties by Seq
// ascending (registration order) — so two handlers on the same topic at the
// same priority always fire in the order they subscribed.
type subscription struct {
	id       string
	seq      uint64
	priority int
	topic    Topic
	handler  Handler
}

// Bus is an injectable event bus instance — never a package-level global.
// The composition root constructs exactly one Bus and passes it to every
// component that needs to publish or subscribe.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
	byID map[string]*subscription

	middlewares []Middleware

	nextSeq uint64
	stats   Stats

	pubsub *gochannel.GoChannel
	log    zerolog.Logger
	closed bool
}

// New constructs a Bus backed by an in-process watermill gochannel.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		byID: make(map[string]*subscription),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false},
			watermill.NopLogger{},
		),
		log: log,
	}
}

// Use registers a middleware applied to every handler invocation. Must be
// called before any event is published; middlewares added afterward do not
// retroactively wrap subscriptions already dispatched.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// Subscribe registers handler for topic at priority (higher runs first).
// id must be unique per logical subscriber; calling Subscribe again with an
// id already registered for an equal topic is a no-op that returns the
// existing unsubscribe function — this makes resubscription (e.g. after a
// transport edge reconnect replays setup) idempotent rather than
// double-delivering.
func (b *Bus) Subscribe(id string, topic Topic, priority int, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	if existing, ok := b.byID[id]; ok && existing.topic == topic {
		return func() { b.unsubscribe(id) }
	}

	sub := &subscription{
		id:       id,
		seq:      atomic.AddUint64(&b.nextSeq, 1),
		priority: priority,
		topic:    topic,
		handler:  h,
	}
	b.byID[id] = sub
	b.subs = append(b.subs, sub)
	b.sortLocked()

	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[id]; !ok {
		return
	}
	delete(b.byID, id)
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) sortLocked() {
	sort.SliceStable(b.subs, func(i, j int) bool {
		if b.subs[i].priority != b.subs[j].priority {
			return b.subs[i].priority > b.subs[j].priority
		}
		return b.subs[i].seq < b.subs[j].seq
	})
}

// matching returns the handlers (already middleware-wrapped) matching e, in
// priority/registration order, under the bus's read lock.
func (b *Bus) matching(e types.Event) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic.matches(e) {
			out = append(out, b.wrap(s.handler))
		}
	}
	return out
}

func (b *Bus) wrap(h Handler) Handler {
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		h = b.middlewares[i](h)
	}
	return h
}

// Publish delivers e to every matching subscriber without waiting: each
// handler runs in its own goroutine. Use for routine notifications where
// handler latency must never delay the publisher.
func (b *Bus) Publish(ctx context.Context, e types.Event) {
	handlers := b.matching(e)
	atomic.AddUint64(&b.stats.Published, uint64(1))
	b.touchLastEvent(e)

	if len(handlers) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer wg.Done()
			b.invoke(ctx, h, e)
		}()
	}
	// Fire-and-forget: the publisher does not block on wg, but we still
	// drain it in the background so stats.Succeeded/Failed stay accurate.
	go wg.Wait()
}

// PublishAndWait delivers e to every matching subscriber in priority order,
// on the calling goroutine, and returns only once all have run. Use for
// events whose ordering or completion the publisher depends on (e.g.
// persisting before acknowledging an IDE frame).
func (b *Bus) PublishAndWait(ctx context.Context, e types.Event) {
	handlers := b.matching(e)
	atomic.AddUint64(&b.stats.Published, uint64(1))
	b.touchLastEvent(e)

	for _, h := range handlers {
		b.invoke(ctx, h, e)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, e types.Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&b.stats.Failed, uint64(1))
			b.log.Error().Interface("panic", r).Str("eventType", string(e.EventType)).Msg("event handler panicked")
		}
	}()
	select {
	case <-ctx.Done():
		atomic.AddUint64(&b.stats.Failed, uint64(1))
		return
	default:
	}
	h(e)
	atomic.AddUint64(&b.stats.Succeeded, uint64(1))
}

func (b *Bus) touchLastEvent(e types.Event) {
	atomic.StoreInt64(&b.stats.LastEventUnix, e.Timestamp)
}

// Stats returns a snapshot of the bus's run counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:     atomic.LoadUint64(&b.stats.Published),
		Succeeded:     atomic.LoadUint64(&b.stats.Succeeded),
		Failed:        atomic.LoadUint64(&b.stats.Failed),
		LastEventUnix: atomic.LoadInt64(&b.stats.LastEventUnix),
	}
}

// Close releases the underlying watermill transport and drops all
// subscriptions. The bus must not be used afterward.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = nil
	b.byID = make(map[string]*subscription)
	b.mu.Unlock()

	return b.pubsub.Close()
}
