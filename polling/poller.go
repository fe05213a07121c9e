// Package polling is the fallback used while the push channel is down. Each
// entity gets its own loop that fetches a full snapshot, diffs it against the
// previous one and synthesizes insert/update/delete events. The interval
// adapts: it shrinks while data is changing and grows while idle.
package polling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

const (
	DefaultInitialInterval = 10 * time.Second
	DefaultMinInterval     = 3 * time.Second
	DefaultMaxInterval     = 60 * time.Second
	DefaultIdleRounds      = 3
	DefaultFetchTimeout    = 10 * time.Second
	DefaultEventBuffer     = 256

	shrinkFactor = 0.8
	growFactor   = 1.5
)

// Fetcher returns the full current collection for one entity
type Fetcher func(ctx context.Context) ([]event.Record, error)

// Options configures a Poller
type Options struct {
	InitialInterval     time.Duration
	MinInterval         time.Duration
	MaxInterval         time.Duration
	IdleRounds          int           // unchanged cycles before the interval grows
	FetchTimeout        time.Duration // per fetch
	EmitInitialSnapshot bool          // first cycle emits inserts instead of only recording a baseline
	EventBuffer         int

	// OnUpdate runs synchronously on the entity's loop for every synthesized
	// event. It must not call StopPolling or StopAll.
	OnUpdate func(event.RealtimeEvent)
	OnError  func(error)
}

func (o *Options) setDefaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultMaxInterval
	}
	if o.MaxInterval < o.MinInterval {
		o.MaxInterval = o.MinInterval
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	o.InitialInterval = clamp(o.InitialInterval, o.MinInterval, o.MaxInterval)
	if o.IdleRounds <= 0 {
		o.IdleRounds = DefaultIdleRounds
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}

// State is a copy of one entity's polling state
type State struct {
	Entity       event.Entity  `json:"entity"`
	Interval     time.Duration `json:"interval"`
	IdleRounds   int           `json:"idle_rounds"`
	SnapshotSize int           `json:"snapshot_size"`
	Cycles       int           `json:"cycles"`
	LastPoll     time.Time     `json:"last_poll"`
	LastError    string        `json:"last_error,omitempty"`
}

type loop struct {
	entity  event.Entity
	fetcher Fetcher
	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	resetCh chan struct{}

	mu       sync.Mutex
	state    State
	seeded   bool
	snapshot snapshot
}

func (l *loop) snapshotState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *loop) stopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

// Poller runs independent poll loops per entity
type Poller struct {
	mu     sync.Mutex
	opts   Options
	loops  map[event.Entity]*loop
	events chan event.RealtimeEvent
	evOn   atomic.Bool
}

// New creates an idle Poller
func New(opts Options) *Poller {
	opts.setDefaults()
	return &Poller{
		opts:   opts,
		loops:  make(map[event.Entity]*loop),
		events: make(chan event.RealtimeEvent, opts.EventBuffer),
	}
}

// Events returns synthesized events. Events are only queued once this has
// been called.
func (p *Poller) Events() <-chan event.RealtimeEvent {
	p.evOn.Store(true)
	return p.events
}

// StartPolling begins polling entity. The first cycle runs immediately.
// Starting an entity that is already polling is a no-op.
func (p *Poller) StartPolling(entity event.Entity, fetcher Fetcher) error {
	if fetcher == nil {
		return fmt.Errorf("start polling %s: fetcher is required", entity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.loops[entity]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		entity:  entity,
		fetcher: fetcher,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		resetCh: make(chan struct{}, 1),
		state:   State{Entity: entity, Interval: p.opts.InitialInterval},
	}
	p.loops[entity] = l
	telemetry.ActivePollLoops.Set(float64(len(p.loops)))
	telemetry.PollIntervalSeconds.With(string(entity)).Set(l.state.Interval.Seconds())

	log.Info().
		Str("entity", string(entity)).
		Dur("interval", l.state.Interval).
		Msg("Starting poll loop")

	go p.run(l)
	return nil
}

// StopPolling halts the loop for entity and waits for it to exit. No event
// from that loop is emitted after it returns.
func (p *Poller) StopPolling(entity event.Entity) {
	p.mu.Lock()
	l, ok := p.loops[entity]
	if ok {
		delete(p.loops, entity)
		telemetry.ActivePollLoops.Set(float64(len(p.loops)))
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	p.halt(l)
	log.Info().Str("entity", string(entity)).Msg("Poll loop stopped")
}

// StopAll halts every loop and waits for them to exit
func (p *Poller) StopAll() {
	p.mu.Lock()
	loops := make([]*loop, 0, len(p.loops))
	for _, l := range p.loops {
		loops = append(loops, l)
	}
	p.loops = make(map[event.Entity]*loop)
	telemetry.ActivePollLoops.Set(0)
	p.mu.Unlock()

	for _, l := range loops {
		close(l.stopCh)
		l.cancel()
	}
	for _, l := range loops {
		<-l.doneCh
	}
	if len(loops) > 0 {
		log.Info().Int("loops", len(loops)).Msg("All poll loops stopped")
	}
}

func (p *Poller) halt(l *loop) {
	close(l.stopCh)
	l.cancel()
	<-l.doneCh
}

// SetInterval clamps d to the configured bounds and applies it to the next
// cycle, re-arming the pending timer
func (p *Poller) SetInterval(entity event.Entity, d time.Duration) error {
	p.mu.Lock()
	l, ok := p.loops[entity]
	lo, hi := p.opts.MinInterval, p.opts.MaxInterval
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("set interval: %s is not polling", entity)
	}

	d = clamp(d, lo, hi)
	l.mu.Lock()
	l.state.Interval = d
	l.mu.Unlock()
	telemetry.PollIntervalSeconds.With(string(entity)).Set(d.Seconds())

	select {
	case l.resetCh <- struct{}{}:
	default:
	}
	return nil
}

// SetBounds replaces the interval bounds; running loops are clamped on their
// next cycle
func (p *Poller) SetBounds(minInterval, maxInterval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if minInterval > 0 {
		p.opts.MinInterval = minInterval
	}
	if maxInterval > 0 {
		p.opts.MaxInterval = max(maxInterval, p.opts.MinInterval)
	}
}

// IsPolling reports whether entity has a running loop
func (p *Poller) IsPolling(entity event.Entity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loops[entity]
	return ok
}

// Active returns the polled entities, sorted
func (p *Poller) Active() []event.Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Entity, 0, len(p.loops))
	for e := range p.loops {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActiveCount returns the number of running loops
func (p *Poller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loops)
}

// State returns a copy of the polling state for entity
func (p *Poller) State(entity event.Entity) (State, bool) {
	p.mu.Lock()
	l, ok := p.loops[entity]
	p.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return l.snapshotState(), true
}

func (p *Poller) bounds() (time.Duration, time.Duration, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.MinInterval, p.opts.MaxInterval, p.opts.IdleRounds
}

func (p *Poller) run(l *loop) {
	defer close(l.doneCh)

	p.cycle(l)

	for {
		timer := time.NewTimer(l.snapshotState().Interval)
		select {
		case <-l.stopCh:
			timer.Stop()
			return
		case <-l.resetCh:
			timer.Stop()
		case <-timer.C:
			p.cycle(l)
		}
	}
}

func (p *Poller) cycle(l *loop) {
	if l.stopped() {
		return
	}
	entity := string(l.entity)

	ctx, cancel := context.WithTimeout(l.ctx, p.opts.FetchTimeout)
	start := time.Now()
	records, err := l.fetcher(ctx)
	cancel()
	telemetry.PollFetchSeconds.With(entity).Observe(time.Since(start).Seconds())

	if l.stopped() {
		return
	}

	now := time.Now()
	if err != nil {
		ferr := &event.FetchError{Entity: l.entity, Err: err}
		l.mu.Lock()
		l.state.Cycles++
		l.state.LastPoll = now
		l.state.LastError = err.Error()
		l.mu.Unlock()

		telemetry.PollCyclesTotal.With(entity, "error").Inc()
		log.Warn().Err(err).Str("entity", entity).Msg("Snapshot fetch failed, keeping interval")
		if p.opts.OnError != nil {
			p.opts.OnError(ferr)
		}
		return
	}

	next := indexSnapshot(l.entity, records)
	minI, maxI, idleRounds := p.bounds()

	l.mu.Lock()
	l.state.Cycles++
	l.state.LastPoll = now
	l.state.LastError = ""
	l.state.SnapshotSize = len(next)

	if !l.seeded && !p.opts.EmitInitialSnapshot {
		l.snapshot = next
		l.seeded = true
		l.mu.Unlock()
		telemetry.PollCyclesTotal.With(entity, "baseline").Inc()
		log.Debug().Str("entity", entity).Int("records", len(next)).Msg("Recorded baseline snapshot")
		return
	}

	events := diffSnapshots(l.entity, l.snapshot, next, now)
	l.snapshot = next
	l.seeded = true

	interval := l.state.Interval
	if len(events) > 0 {
		interval = time.Duration(float64(interval) * shrinkFactor)
		l.state.IdleRounds = 0
	} else {
		l.state.IdleRounds++
		if l.state.IdleRounds >= idleRounds {
			interval = time.Duration(float64(interval) * growFactor)
			l.state.IdleRounds = 0
		}
	}
	interval = clamp(interval, minI, maxI)
	changed := interval != l.state.Interval
	l.state.Interval = interval
	l.mu.Unlock()

	if changed {
		telemetry.PollIntervalSeconds.With(entity).Set(interval.Seconds())
		log.Debug().Str("entity", entity).Dur("interval", interval).Msg("Poll interval adapted")
	}

	if len(events) == 0 {
		telemetry.PollCyclesTotal.With(entity, "idle").Inc()
		return
	}
	telemetry.PollCyclesTotal.With(entity, "changed").Inc()

	for _, ev := range events {
		telemetry.EventsReceivedTotal.With(string(event.SourcePoll), entity).Inc()
		if p.opts.OnUpdate != nil {
			p.opts.OnUpdate(ev)
		}
		if !p.evOn.Load() {
			continue
		}
		select {
		case p.events <- ev:
		case <-l.stopCh:
			return
		}
	}
}
