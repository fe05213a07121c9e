// Package dispatch applies realtime events to the query cache according to
// a per-entity mapping table.
package dispatch

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// Dispatcher routes events into a cache.Store. Safe for concurrent use.
type Dispatcher struct {
	store cache.Store

	mu    sync.RWMutex
	table Table
}

// New creates a dispatcher. A nil table means DefaultTable.
func New(store cache.Store, table Table) *Dispatcher {
	if table == nil {
		table = DefaultTable()
	}
	return &Dispatcher{store: store, table: table}
}

// SetTable swaps the mapping table, used on configuration reload
func (d *Dispatcher) SetTable(t Table) {
	if t == nil {
		t = DefaultTable()
	}
	d.mu.Lock()
	d.table = t
	d.mu.Unlock()
	log.Info().Int("mappings", t.Len()).Msg("Cache mapping table updated")
}

// Mappings returns the mappings registered for an entity
func (d *Dispatcher) Mappings(entity event.Entity) []Mapping {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Mapping(nil), d.table[entity]...)
}

// Entities returns the entities that have at least one mapping
func (d *Dispatcher) Entities() []event.Entity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]event.Entity, 0, len(d.table))
	for e, ms := range d.table {
		if len(ms) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// Handle applies ev to every mapping of its entity and returns how many
// mappings were applied.
func (d *Dispatcher) Handle(ev event.RealtimeEvent) int {
	mappings := d.Mappings(ev.Entity)
	for _, m := range mappings {
		switch m.Policy {
		case PolicyPatch:
			d.patch(m, ev)
		default:
			d.store.Invalidate(m.CacheKey)
		}
	}
	if len(mappings) == 0 {
		log.Debug().Str("entity", string(ev.Entity)).Msg("No cache mapping for entity")
	}
	return len(mappings)
}

func (d *Dispatcher) patch(m Mapping, ev event.RealtimeEvent) {
	id, hasID := ev.Data.ID()

	switch ev.Action {
	case event.ActionInsert:
		d.store.Invalidate(m.ListKey())

	case event.ActionUpdate:
		if hasID {
			detail := m.DetailKey(id)
			if _, ok := d.store.Get(detail); ok {
				d.store.Set(detail, func(old any, exists bool) any {
					return mergeRecord(old, exists, ev.Data)
				})
			}
		}
		d.store.Invalidate(m.ListKey())

	case event.ActionDelete:
		if hasID {
			d.store.Remove(m.DetailKey(id))
		}
		d.store.Invalidate(m.ListKey())
	}
}

// mergeRecord writes patch over a cached record. Values that are not
// records are replaced outright.
func mergeRecord(old any, exists bool, patch event.Record) any {
	if !exists {
		return patch.Clone()
	}
	switch rec := old.(type) {
	case event.Record:
		return rec.Merge(patch)
	case map[string]any:
		return event.Record(rec).Merge(patch)
	default:
		return patch.Clone()
	}
}

// InvalidateEntity marks every key mapped to entity stale regardless of
// policy, bypassing the event pipeline. Returns the number of keys touched.
func (d *Dispatcher) InvalidateEntity(entity event.Entity) int {
	mappings := d.Mappings(entity)
	for _, m := range mappings {
		d.store.Invalidate(m.CacheKey)
	}
	log.Info().Str("entity", string(entity)).Int("keys", len(mappings)).Msg("Entity invalidated")
	return len(mappings)
}
