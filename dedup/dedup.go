// Package dedup drops events that were already delivered within a short window.
// The push channel and the polling fallback can both observe the same change
// around a mode switch; both derive the same event id, so one of them is
// suppressed here.
package dedup

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

// DefaultWindow is how long an event id is remembered.
const DefaultWindow = 5 * time.Second

// Deduplicator remembers recently seen event ids. Safe for concurrent use.
type Deduplicator struct {
	window time.Duration
	seen   *cache.Cache
}

// New creates a Deduplicator. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{
		window: window,
		seen:   cache.New(window, window*2),
	}
}

// Accept reports whether ev is new. The first call for an id within the window
// returns true and records it; later calls return false until it expires.
func (d *Deduplicator) Accept(ev event.RealtimeEvent) bool {
	if ev.ID == "" {
		return true
	}
	// Add fails when the key is present and unexpired, which makes the
	// check-and-record atomic.
	if err := d.seen.Add(ev.ID, struct{}{}, d.window); err != nil {
		telemetry.EventsDeduplicated.With(string(ev.Entity)).Inc()
		log.Debug().
			Str("event_id", ev.ID).
			Str("topic", ev.Topic()).
			Msg("Dropping duplicate event")
		return false
	}
	return true
}

// Window returns the configured suppression window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// Len returns the number of remembered ids, including ones expired but not yet swept.
func (d *Deduplicator) Len() int {
	return d.seen.ItemCount()
}

// Reset forgets every remembered id.
func (d *Deduplicator) Reset() {
	d.seen.Flush()
}
