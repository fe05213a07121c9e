package realtime

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

// BindOptions describes one observer of an entity
type BindOptions struct {
	Entity event.Entity
	// Filter limits OnEvent to matching records; nil matches everything
	Filter *event.Filter
	// OnEvent is an optional side effect run after the cache was updated
	OnEvent func(event.RealtimeEvent)
}

// Binding is the lifetime of one observer. Cache dispatch happens for every
// event regardless of bindings; a binding adds interest (which drives
// polling) and the optional OnEvent callback.
type Binding struct {
	id      string
	entity  event.Entity
	filter  *event.Filter
	onEvent func(event.RealtimeEvent)
	r       *Realtime

	mu        sync.Mutex // held while OnEvent runs
	closed    atomic.Bool
	cancels   []func()
	closeOnce sync.Once
}

// Bind registers an observer for entity. Close the returned binding when the
// observation ends.
func (r *Realtime) Bind(opts BindOptions) (*Binding, error) {
	if opts.Entity == "" {
		return nil, errors.New("bind: entity is required")
	}
	if _, err := event.ParseEntity(string(opts.Entity)); err != nil {
		return nil, err
	}

	b := &Binding{
		id:      uuid.NewString(),
		entity:  opts.Entity,
		filter:  opts.Filter,
		onEvent: opts.OnEvent,
		r:       r,
	}
	for _, action := range event.Actions {
		b.cancels = append(b.cancels, r.hub.Subscribe(event.Topic(opts.Entity, action), b.deliver))
	}

	n, _ := r.interest.Compute(opts.Entity, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	telemetry.ActiveBindings.With(string(opts.Entity)).Set(float64(n))

	r.mu.Lock()
	if r.started && r.mode == ModePoll && r.wantedLocked(opts.Entity) {
		r.startPollingLocked(opts.Entity)
	}
	r.mu.Unlock()

	log.Debug().Str("binding", b.id).Str("entity", string(opts.Entity)).Stringer("filter", b.filter).Msg("Binding opened")
	return b, nil
}

// ID returns the binding id
func (b *Binding) ID() string { return b.id }

// Entity returns the observed entity
func (b *Binding) Entity() event.Entity { return b.entity }

func (b *Binding) deliver(ev event.RealtimeEvent) {
	if b.onEvent == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() || !b.filter.Match(ev) {
		return
	}
	b.onEvent(ev)
}

// Close removes every handler of the binding, releases its interest and
// waits for a running OnEvent to return. After Close returns no callback
// runs. It may be called more than once but must not be called from within
// OnEvent; use Detach there.
func (b *Binding) Close() {
	b.closed.Store(true)
	// a running callback holds mu
	b.mu.Lock()
	b.mu.Unlock()
	b.detach()
}

// Detach is Close without the wait for a running callback. It is the way
// for OnEvent to end its own binding; no later event reaches OnEvent.
func (b *Binding) Detach() {
	b.closed.Store(true)
	b.detach()
}

func (b *Binding) detach() {
	b.closeOnce.Do(func() {
		for _, cancel := range b.cancels {
			cancel()
		}
		b.r.release(b.entity)
		log.Debug().Str("binding", b.id).Str("entity", string(b.entity)).Msg("Binding closed")
	})
}

func (r *Realtime) release(entity event.Entity) {
	n, ok := r.interest.Compute(entity, func(old int, _ bool) (int, bool) {
		if old <= 1 {
			return 0, true
		}
		return old - 1, false
	})
	if !ok {
		n = 0
	}
	telemetry.ActiveBindings.With(string(entity)).Set(float64(n))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started && r.mode == ModePoll && !r.wantedLocked(entity) && r.poller.IsPolling(entity) {
		r.poller.StopPolling(entity)
	}
}
