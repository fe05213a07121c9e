// Package notify routes realtime events to topic subscribers.
package notify

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

// Handler receives events published on a topic.
type Handler func(event.RealtimeEvent)

// subscription represents a single subscriber.
type subscription struct {
	id      uint64
	topic   string
	handler Handler
	closed  atomic.Bool
}

// Hub is a thread-safe topic registry. Topics are "entity:action" or the
// wildcard "entity:*".
type Hub struct {
	topics  *xsync.MapOf[string, []*subscription]
	nextID  atomic.Uint64
	onError atomic.Pointer[func(error)]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		topics: xsync.NewMapOf[string, []*subscription](),
	}
}

// OnError registers a callback for recovered handler panics.
func (h *Hub) OnError(fn func(error)) {
	h.onError.Store(&fn)
}

// Subscribe registers handler on topic and returns its cancel function.
// The cancel function is idempotent.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	sub := &subscription{
		id:      h.nextID.Add(1),
		topic:   topic,
		handler: handler,
	}

	h.topics.Compute(topic, func(old []*subscription, _ bool) ([]*subscription, bool) {
		next := make([]*subscription, len(old), len(old)+1)
		copy(next, old)
		return append(next, sub), false
	})

	return func() {
		h.unsubscribe(sub)
	}
}

// Unsubscribe removes every handler registered on topic.
func (h *Hub) Unsubscribe(topic string) {
	subs, ok := h.topics.LoadAndDelete(topic)
	if !ok {
		return
	}
	for _, s := range subs {
		s.closed.Store(true)
	}
}

func (h *Hub) unsubscribe(sub *subscription) {
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}
	h.topics.Compute(sub.topic, func(old []*subscription, loaded bool) ([]*subscription, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]*subscription, 0, len(old))
		for _, s := range old {
			if s != sub {
				next = append(next, s)
			}
		}
		return next, len(next) == 0
	})
}

// Publish delivers ev to subscribers of its exact topic and of the entity
// wildcard, in registration order. A panicking handler is recovered and
// reported without affecting the others. Returns the number of handlers run.
func (h *Hub) Publish(ev event.RealtimeEvent) int {
	exact, _ := h.topics.Load(ev.Topic())
	wildcard, _ := h.topics.Load(event.WildcardTopic(ev.Entity))

	subs := make([]*subscription, 0, len(exact)+len(wildcard))
	subs = append(subs, exact...)
	subs = append(subs, wildcard...)
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	delivered := 0
	for _, s := range subs {
		if s.closed.Load() {
			continue
		}
		h.deliver(s, ev)
		delivered++
	}
	return delivered
}

func (h *Hub) deliver(s *subscription, ev event.RealtimeEvent) {
	defer func() {
		if r := recover(); r != nil {
			err := &event.HandlerError{Topic: s.topic, Recovered: r}
			telemetry.HandlerPanicsTotal.With(s.topic).Inc()
			log.Error().
				Str("topic", s.topic).
				Str("event_id", ev.ID).
				Interface("panic", r).
				Msg("Subscriber handler panicked")
			if fn := h.onError.Load(); fn != nil {
				(*fn)(err)
			}
		}
	}()
	s.handler(ev)
}

// Count returns the number of handlers on topic.
func (h *Hub) Count(topic string) int {
	subs, _ := h.topics.Load(topic)
	return len(subs)
}

// Topics returns every topic with at least one handler, sorted.
func (h *Hub) Topics() []string {
	var out []string
	h.topics.Range(func(topic string, subs []*subscription) bool {
		if len(subs) > 0 {
			out = append(out, topic)
		}
		return true
	})
	sort.Strings(out)
	return out
}

// EntityOf returns the entity part of a topic.
func EntityOf(topic string) string {
	entity, _, _ := strings.Cut(topic, ":")
	return entity
}
