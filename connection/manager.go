// Package connection maintains the push channel: it dials, keeps the session
// alive with heartbeats, reconnects with exponential backoff and fans decoded
// events out to topic subscribers.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/notify"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

const (
	DefaultReconnectInterval    = time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultMaxBackoff           = 30 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultSendQueueSize        = 64
	DefaultEventBuffer          = 256

	// writeTimeout bounds a single frame write
	writeTimeout = 10 * time.Second
)

// Options configures a Manager
type Options struct {
	ReconnectInterval    time.Duration // base backoff delay
	MaxReconnectAttempts int           // consecutive failed attempts before giving up
	MaxBackoff           time.Duration // backoff ceiling
	HeartbeatInterval    time.Duration
	DialTimeout          time.Duration
	SendQueueSize        int
	EventBuffer          int

	OnError            func(error)
	OnReconnectAttempt func(attempt int, delay time.Duration)
}

func (o *Options) setDefaults() {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
}

// DefaultOptions returns the stock reconnect and heartbeat policy
func DefaultOptions() Options {
	o := Options{}
	o.setDefaults()
	return o
}

// StatusListener is called for every status transition, in order. Listeners
// run on the goroutine that caused the transition and must not block.
type StatusListener func(Status)

type listener struct {
	id uint64
	fn StatusListener
}

type outbound struct {
	frame   []byte
	promise *future.Promise[struct{}]
}

// session is one dialed connection and the goroutines serving it
type session struct {
	gen    uint64
	conn   channel.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendq  chan outbound
	once   sync.Once
}

func (s *session) shutdown() {
	s.once.Do(func() {
		s.cancel()
		if err := s.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Error closing push channel")
		}
	})
}

// Manager owns the push channel lifecycle. All methods are safe for
// concurrent use.
type Manager struct {
	transport channel.Transport
	opts      Options
	hub       *notify.Hub
	events    chan event.RealtimeEvent
	eventsOn  atomic.Bool
	lastPong  atomic.Int64

	mu             sync.Mutex
	status         Status
	gen            uint64 // bumped by Connect and Disconnect; stale callbacks compare against it
	attempts       int
	autoReconnect  bool
	reconnectTimer *time.Timer
	session        *session
	listeners      []listener
	nextListenerID uint64
	pending        []Status

	notifyMu sync.Mutex
}

// NewManager creates a disconnected Manager
func NewManager(transport channel.Transport, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		transport: transport,
		opts:      opts,
		hub:       notify.NewHub(),
		events:    make(chan event.RealtimeEvent, opts.EventBuffer),
		status:    StatusDisconnected,
	}
}

// Connect opens the channel in the background and enables auto-reconnect.
// It is a no-op while a session is open or being dialed.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.autoReconnect = true
	m.attempts = 0
	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	m.flush()

	log.Info().Str("transport", m.transport.Name()).Msg("Connecting push channel")
	go m.dial(gen)
}

// Disconnect cancels timers, closes the channel and disables auto-reconnect
// until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.autoReconnect = false
	m.gen++
	m.stopTimerLocked()
	s := m.session
	m.session = nil
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if s != nil {
		s.shutdown()
	}
	m.flush()
}

func (m *Manager) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	conn, err := m.transport.Dial(ctx)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.setStatusLocked(StatusError)
		m.setStatusLocked(StatusDisconnected)
		m.mu.Unlock()
		m.flush()

		log.Warn().Err(err).Str("transport", m.transport.Name()).Msg("Push channel dial failed")
		m.reportError(&event.TransportError{Op: "dial", Err: err})
		m.scheduleReconnect(gen)
		return
	}

	sctx, scancel := context.WithCancel(context.Background())
	s := &session{
		gen:    gen,
		conn:   conn,
		ctx:    sctx,
		cancel: scancel,
		sendq:  make(chan outbound, m.opts.SendQueueSize),
	}
	m.session = s
	m.attempts = 0
	m.setStatusLocked(StatusConnected)
	m.mu.Unlock()
	m.flush()

	log.Info().Str("transport", m.transport.Name()).Msg("Push channel connected")

	go m.readLoop(s)
	go m.writeLoop(s)
	go m.heartbeat(s)
}

// sessionFailed tears down a live session and starts the reconnect path.
// A clean close by the peer goes straight to disconnected; anything else
// passes through error first.
func (m *Manager) sessionFailed(s *session, op string, err error) {
	peerClosed := errors.Is(err, channel.ErrClosed)

	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		s.shutdown()
		return
	}
	m.session = nil
	if !peerClosed {
		m.setStatusLocked(StatusError)
	}
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	s.shutdown()
	m.flush()

	if peerClosed {
		log.Warn().Str("op", op).Msg("Push channel closed by peer")
	} else {
		log.Warn().Err(err).Str("op", op).Msg("Push channel failed")
	}
	m.reportError(&event.TransportError{Op: op, Err: err})
	m.scheduleReconnect(s.gen)
}

// scheduleReconnect runs after the error callback so callers observe the
// failure before any retry is armed
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	attempt := m.scheduleReconnectLocked()
	m.mu.Unlock()
	m.flush()
	attempt()
}

// scheduleReconnectLocked arms the reconnect timer and returns the attempt
// callback to run once m.mu is released.
func (m *Manager) scheduleReconnectLocked() func() {
	noop := func() {}
	if !m.autoReconnect {
		return noop
	}
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.autoReconnect = false
		m.setStatusLocked(StatusDisconnected)
		log.Error().
			Int("attempts", m.attempts).
			Msg("Giving up on push channel after max reconnect attempts")
		return noop
	}

	m.attempts++
	attempt := m.attempts
	delay := ReconnectDelay(m.opts.ReconnectInterval, attempt, m.opts.MaxBackoff)
	gen := m.gen
	m.setStatusLocked(StatusReconnecting)
	m.reconnectTimer = time.AfterFunc(delay, func() { m.reconnect(gen) })

	telemetry.ReconnectAttemptsTotal.Inc()
	log.Warn().
		Int("attempt", attempt).
		Int("max_attempts", m.opts.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("Scheduling push channel reconnect")

	return func() {
		if m.opts.OnReconnectAttempt != nil {
			m.opts.OnReconnectAttempt(attempt, delay)
		}
	}
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.autoReconnect {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	m.flush()

	m.dial(gen)
}

func (m *Manager) stopTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) readLoop(s *session) {
	for {
		frame, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			m.sessionFailed(s, "receive", err)
			return
		}

		now := time.Now()
		msg, err := event.Decode(frame, now)
		if err != nil {
			telemetry.DecodeErrorsTotal.Inc()
			log.Warn().Err(err).Int("bytes", len(frame)).Msg("Dropping malformed push frame")
			continue
		}

		if msg.Kind == event.KindPong {
			m.lastPong.Store(now.UnixNano())
			continue
		}

		ev := msg.Event
		telemetry.EventsReceivedTotal.With(string(event.SourcePush), string(ev.Entity)).Inc()
		m.hub.Publish(ev)

		if !m.eventsOn.Load() {
			continue
		}
		select {
		case m.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

func (m *Manager) writeLoop(s *session) {
	defer func() {
		for {
			select {
			case o := <-s.sendq:
				telemetry.MessagesSentTotal.With("dropped").Inc()
				o.promise.Set(struct{}{}, event.ErrNotConnected)
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case o := <-s.sendq:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := s.conn.Send(ctx, o.frame)
			cancel()
			if err != nil {
				telemetry.MessagesSentTotal.With("failed").Inc()
				o.promise.Set(struct{}{}, &event.TransportError{Op: "send", Err: err})
				m.sessionFailed(s, "send", err)
				return
			}
			telemetry.MessagesSentTotal.With("ok").Inc()
			o.promise.Set(struct{}{}, nil)
		}
	}
}

func (m *Manager) heartbeat(s *session) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_, err := m.enqueue(s, event.EncodePing()).Get()
			if err == nil || errors.Is(err, event.ErrSendQueueFull) {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			telemetry.HeartbeatFailuresTotal.Inc()
			m.sessionFailed(s, "heartbeat", err)
			return
		}
	}
}

// Send queues a frame for the writer. Sending while not connected logs a
// warning and resolves with ErrNotConnected; nothing is buffered for later.
func (m *Manager) Send(frame []byte) *future.Future[struct{}] {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	return m.enqueue(s, frame)
}

// SendJSON marshals v and sends it
func (m *Manager) SendJSON(v any) *future.Future[struct{}] {
	frame, err := json.Marshal(v)
	if err != nil {
		p := future.NewPromise[struct{}]()
		p.Set(struct{}{}, fmt.Errorf("marshal message: %w", err))
		return p.Future()
	}
	return m.Send(frame)
}

func (m *Manager) enqueue(s *session, frame []byte) *future.Future[struct{}] {
	p := future.NewPromise[struct{}]()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil || m.session != s || m.status != StatusConnected {
		log.Warn().Str("status", m.status.String()).Msg("Push channel not connected, dropping outbound message")
		telemetry.MessagesSentTotal.With("dropped").Inc()
		p.Set(struct{}{}, event.ErrNotConnected)
		return p.Future()
	}

	select {
	case s.sendq <- outbound{frame: frame, promise: p}:
	default:
		telemetry.MessagesSentTotal.With("dropped").Inc()
		p.Set(struct{}{}, event.ErrSendQueueFull)
	}
	return p.Future()
}

// Subscribe registers handler for a topic ("entity:action" or "entity:*")
// and returns its cancel function
func (m *Manager) Subscribe(topic string, handler notify.Handler) func() {
	return m.hub.Subscribe(topic, handler)
}

// Unsubscribe removes every handler on topic
func (m *Manager) Unsubscribe(topic string) {
	m.hub.Unsubscribe(topic)
}

// Events returns decoded push events. Events are only queued once this has
// been called, so callers that only use Subscribe never back-pressure the
// reader.
func (m *Manager) Events() <-chan event.RealtimeEvent {
	m.eventsOn.Store(true)
	return m.events
}

// AddStatusListener registers fn and returns a function that removes it
func (m *Manager) AddStatusListener(fn StatusListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Status returns the current status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether a session is open
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// Attempts returns the number of consecutive reconnect attempts
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastPong returns when the last pong arrived, zero if none has
func (m *Manager) LastPong() time.Time {
	ns := m.lastPong.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Transport returns the transport name
func (m *Manager) Transport() string {
	return m.transport.Name()
}

func (m *Manager) reportError(err error) {
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	log.Info().Str("from", m.status.String()).Str("to", s.String()).Msg("Push channel status changed")
	m.status = s
	m.pending = append(m.pending, s)
	telemetry.SetConnectionStatus(s.String(), statusNames())
}

// flush delivers queued transitions in order. Only one goroutine delivers at
// a time; a listener that triggers another transition has it picked up by
// the loop already running instead of deadlocking.
func (m *Manager) flush() {
	for {
		if !m.notifyMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.pending
			m.pending = nil
			ls := make([]listener, len(m.listeners))
			copy(ls, m.listeners)
			m.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, st := range batch {
				for _, l := range ls {
					l.fn(st)
				}
			}
		}
		m.notifyMu.Unlock()

		m.mu.Lock()
		more := len(m.pending) > 0
		m.mu.Unlock()
		if !more {
			return
		}
	}
}
