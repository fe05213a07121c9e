// Package realtime ties the push channel, the polling fallback, the
// deduplicator and the cache dispatcher together. Exactly one delivery mode
// is active at a time: push while the channel is connected, poll while it is
// down.
package realtime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/connection"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/dedup"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/dispatch"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/notify"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/polling"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

// Mode is the active delivery path
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// Sizer is implemented by caches that can report their entry count
type Sizer interface {
	Len() int
}

// Options wires the collaborators of a Realtime instance
type Options struct {
	Conn       *connection.Manager
	Poller     *polling.Poller
	Dispatcher *dispatch.Dispatcher
	Dedup      *dedup.Deduplicator // defaults to a 5s window
	Cache      Sizer               // optional, for stats only

	// DisablePolling keeps the facade in push mode even while the channel
	// is down
	DisablePolling bool
	Fetchers       map[event.Entity]polling.Fetcher
	// AlwaysPoll entities are polled in poll mode without any binding
	AlwaysPoll []event.Entity

	OnError func(error)
}

// Realtime is the integration facade. All methods are safe for concurrent
// use.
type Realtime struct {
	conn       *connection.Manager
	poller     *polling.Poller
	dispatcher *dispatch.Dispatcher
	dedup      *dedup.Deduplicator
	cache      Sizer
	hub        *notify.Hub
	onError    func(error)
	interest   *xsync.MapOf[event.Entity, int]

	mu             sync.Mutex
	started        bool
	mode           Mode
	pollingEnabled bool
	fetchers       map[event.Entity]polling.Fetcher
	alwaysPoll     map[event.Entity]bool
	stopCh         chan struct{}
	doneCh         chan struct{}
	removeListener func()

	statusMu  sync.Mutex
	statusQ   []connection.Status
	statusSig chan struct{}
}

// New creates a stopped facade
func New(opts Options) (*Realtime, error) {
	if opts.Conn == nil {
		return nil, errors.New("realtime: connection manager is required")
	}
	if opts.Poller == nil {
		return nil, errors.New("realtime: poller is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("realtime: dispatcher is required")
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.New(0)
	}

	r := &Realtime{
		conn:           opts.Conn,
		poller:         opts.Poller,
		dispatcher:     opts.Dispatcher,
		dedup:          opts.Dedup,
		cache:          opts.Cache,
		hub:            notify.NewHub(),
		onError:        opts.OnError,
		interest:       xsync.NewMapOf[event.Entity, int](),
		mode:           ModePush,
		pollingEnabled: !opts.DisablePolling,
		fetchers:       make(map[event.Entity]polling.Fetcher, len(opts.Fetchers)),
		alwaysPoll:     make(map[event.Entity]bool, len(opts.AlwaysPoll)),
		statusSig:      make(chan struct{}, 1),
	}
	for e, f := range opts.Fetchers {
		r.fetchers[e] = f
	}
	for _, e := range opts.AlwaysPoll {
		r.alwaysPoll[e] = true
	}
	if r.onError != nil {
		r.hub.OnError(r.onError)
	}
	return r, nil
}

// Start connects the push channel and begins delivering events. Calling
// Start on a started facade logs a warning and does nothing.
func (r *Realtime) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		log.Warn().Msg("Realtime already started")
		return
	}
	r.started = true
	r.mode = ModePush
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.drainStatus()
	r.removeListener = r.conn.AddStatusListener(r.enqueueStatus)
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	telemetry.SetTransportMode(string(ModePush))
	log.Info().Str("transport", r.conn.Transport()).Msg("Starting realtime sync")

	go r.run(stopCh, doneCh, r.conn.Events(), r.poller.Events())
	r.conn.Connect()
}

// Stop disconnects the channel, halts every poll loop and waits for the
// delivery goroutine to exit. Safe to call on a stopped facade.
func (r *Realtime) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mode = ModePush
	close(r.stopCh)
	remove, doneCh := r.removeListener, r.doneCh
	r.removeListener = nil
	r.mu.Unlock()

	remove()
	r.conn.Disconnect()
	<-doneCh
	r.poller.StopAll()
	// events queued for the old session must not replay after a restart
	if n := drain(r.conn.Events()) + drain(r.poller.Events()); n > 0 {
		log.Debug().Int("events", n).Msg("Discarded undelivered events")
	}
	log.Info().Msg("Realtime sync stopped")
}

func drain(ch <-chan event.RealtimeEvent) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// IsStarted reports whether Start has been called without a matching Stop
func (r *Realtime) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Mode returns the active delivery path
func (r *Realtime) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// IsUsingPushChannel reports whether the facade is started in push mode
func (r *Realtime) IsUsingPushChannel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && r.mode == ModePush
}

// IsUsingPolling reports whether the facade is started in poll mode
func (r *Realtime) IsUsingPolling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && r.mode == ModePoll
}

// Status returns the push channel status
func (r *Realtime) Status() connection.Status {
	return r.conn.Status()
}

// InvalidateEntity marks every cache key mapped to entity stale, bypassing
// the event pipeline
func (r *Realtime) InvalidateEntity(entity event.Entity) int {
	return r.dispatcher.InvalidateEntity(entity)
}

// SetPollInterval applies a new interval to a running poll loop
func (r *Realtime) SetPollInterval(entity event.Entity, d time.Duration) error {
	return r.poller.SetInterval(entity, d)
}

// SetPollBounds replaces the adaptive interval bounds
func (r *Realtime) SetPollBounds(minInterval, maxInterval time.Duration) {
	r.poller.SetBounds(minInterval, maxInterval)
}

// Subscribe registers handler for events that passed deduplication and
// cache dispatch. Topics are "entity:action" or "entity:*".
func (r *Realtime) Subscribe(topic string, handler notify.Handler) func() {
	return r.hub.Subscribe(topic, handler)
}

// RegisterFetcher sets the snapshot fetcher of an entity. In poll mode the
// entity starts polling right away if it is wanted.
func (r *Realtime) RegisterFetcher(entity event.Entity, fetcher polling.Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[entity] = fetcher
	if r.started && r.mode == ModePoll && r.wantedLocked(entity) {
		r.startPollingLocked(entity)
	}
}

// SetAlwaysPoll replaces the set of entities polled without bindings
func (r *Realtime) SetAlwaysPoll(entities []event.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alwaysPoll = make(map[event.Entity]bool, len(entities))
	for _, e := range entities {
		r.alwaysPoll[e] = true
	}
	if !r.started || r.mode != ModePoll {
		return
	}
	for e := range r.fetchers {
		if r.wantedLocked(e) {
			r.startPollingLocked(e)
		} else if r.poller.IsPolling(e) {
			r.poller.StopPolling(e)
		}
	}
}

// Interest returns the number of open bindings per entity
func (r *Realtime) Interest() map[event.Entity]int {
	out := make(map[event.Entity]int)
	r.interest.Range(func(e event.Entity, n int) bool {
		if n > 0 {
			out[e] = n
		}
		return true
	})
	return out
}

func (r *Realtime) enqueueStatus(s connection.Status) {
	r.statusMu.Lock()
	r.statusQ = append(r.statusQ, s)
	r.statusMu.Unlock()
	select {
	case r.statusSig <- struct{}{}:
	default:
	}
}

func (r *Realtime) drainStatus() []connection.Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	q := r.statusQ
	r.statusQ = nil
	return q
}

// run is the single delivery goroutine: push events are handled in receipt
// order and each poll cycle's events in insert, update, delete order
func (r *Realtime) run(stopCh, doneCh chan struct{}, push, poll <-chan event.RealtimeEvent) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-r.statusSig:
			for _, s := range r.drainStatus() {
				r.onStatus(s)
			}
		case ev := <-push:
			r.process(ev)
		case ev := <-poll:
			r.process(ev)
		}
	}
}

func (r *Realtime) process(ev event.RealtimeEvent) {
	if !r.dedup.Accept(ev) {
		return
	}
	r.dispatcher.Handle(ev)
	r.hub.Publish(ev)
}

func (r *Realtime) onStatus(s connection.Status) {
	switch {
	case s == connection.StatusConnected:
		r.switchToPush()
	case s.IsDown():
		r.switchToPoll()
	}
}

func (r *Realtime) switchToPoll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || !r.pollingEnabled || r.mode == ModePoll {
		return
	}
	r.mode = ModePoll
	telemetry.SetTransportMode(string(ModePoll))

	entities := make([]event.Entity, 0, len(r.fetchers))
	for e := range r.fetchers {
		if r.wantedLocked(e) {
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	for _, e := range entities {
		r.startPollingLocked(e)
	}
	log.Warn().Int("entities", len(entities)).Msg("Push channel down, switched to polling")
}

func (r *Realtime) switchToPush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.mode == ModePush {
		return
	}
	r.mode = ModePush
	telemetry.SetTransportMode(string(ModePush))
	r.poller.StopAll()
	log.Info().Msg("Push channel restored, polling halted")
}

// wantedLocked reports whether entity should be polled in poll mode
func (r *Realtime) wantedLocked(entity event.Entity) bool {
	if _, ok := r.fetchers[entity]; !ok {
		return false
	}
	if r.alwaysPoll[entity] {
		return true
	}
	n, _ := r.interest.Load(entity)
	return n > 0
}

func (r *Realtime) startPollingLocked(entity event.Entity) {
	if err := r.poller.StartPolling(entity, r.fetchers[entity]); err != nil {
		log.Error().Err(err).Str("entity", string(entity)).Msg("Failed to start poll loop")
		if r.onError != nil {
			r.onError(err)
		}
	}
}

// DedupSize returns the number of remembered event ids
func (r *Realtime) DedupSize() int {
	return r.dedup.Len()
}

// ActivePollLoops returns the number of running poll loops
func (r *Realtime) ActivePollLoops() int {
	return r.poller.ActiveCount()
}

// CacheEntries returns the cache size, zero without a cache
func (r *Realtime) CacheEntries() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

var _ telemetry.StatsProvider = (*Realtime)(nil)

// Snapshot is a point-in-time view for status reporting
type Snapshot struct {
	Started   bool                 `json:"started"`
	Mode      Mode                 `json:"mode"`
	Status    string               `json:"status"`
	Transport string               `json:"transport"`
	Attempts  int                  `json:"reconnect_attempts"`
	LastPong  *time.Time           `json:"last_pong,omitempty"`
	Polling   []polling.State      `json:"polling"`
	Bindings  map[event.Entity]int `json:"bindings"`
	DedupSize int                  `json:"dedup_size"`
	CacheSize int                  `json:"cache_entries"`
}

// Snapshot collects the current state of every component
func (r *Realtime) Snapshot() Snapshot {
	r.mu.Lock()
	started, mode := r.started, r.mode
	r.mu.Unlock()

	s := Snapshot{
		Started:   started,
		Mode:      mode,
		Status:    r.conn.Status().String(),
		Transport: r.conn.Transport(),
		Attempts:  r.conn.Attempts(),
		Polling:   []polling.State{},
		Bindings:  r.Interest(),
		DedupSize: r.DedupSize(),
		CacheSize: r.CacheEntries(),
	}
	if pong := r.conn.LastPong(); !pong.IsZero() {
		s.LastPong = &pong
	}
	for _, e := range r.poller.Active() {
		if st, ok := r.poller.State(e); ok {
			s.Polling = append(s.Polling, st)
		}
	}
	return s
}
