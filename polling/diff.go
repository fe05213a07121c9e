package polling

import (
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/encoding"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// snapshotEntry is one record of a snapshot with its content fingerprint
type snapshotEntry struct {
	record event.Record
	hash   uint64
}

// snapshot indexes records by primary key
type snapshot map[string]snapshotEntry

// fingerprint hashes the canonical (sorted-key) serialization of a record so
// that key order in the backend response never looks like a change
func fingerprint(r event.Record) uint64 {
	b, err := encoding.MarshalCanonical(map[string]any(r))
	if err != nil {
		// fmt prints maps with sorted keys
		return xxhash.Sum64String(fmt.Sprint(map[string]any(r)))
	}
	return xxhash.Sum64(b)
}

func indexSnapshot(entity event.Entity, records []event.Record) snapshot {
	out := make(snapshot, len(records))
	skipped := 0
	for _, r := range records {
		id, ok := r.ID()
		if !ok {
			skipped++
			continue
		}
		out[id] = snapshotEntry{record: r, hash: fingerprint(r)}
	}
	if skipped > 0 {
		log.Debug().Str("entity", string(entity)).Int("skipped", skipped).Msg("Snapshot records without id ignored")
	}
	return out
}

// diffSnapshots synthesizes the events that turn prev into next: inserts,
// then updates, then deletes, each group ordered by id
func diffSnapshots(entity event.Entity, prev, next snapshot, at time.Time) []event.RealtimeEvent {
	var inserts, updates, deletes []string
	for id, n := range next {
		p, ok := prev[id]
		switch {
		case !ok:
			inserts = append(inserts, id)
		case p.hash != n.hash:
			updates = append(updates, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	sort.Strings(inserts)
	sort.Strings(updates)
	sort.Strings(deletes)

	out := make([]event.RealtimeEvent, 0, len(inserts)+len(updates)+len(deletes))
	for _, id := range inserts {
		out = append(out, event.New(event.SourcePoll, entity, event.ActionInsert, next[id].record, at))
	}
	for _, id := range updates {
		out = append(out, event.New(event.SourcePoll, entity, event.ActionUpdate, next[id].record, at))
	}
	for _, id := range deletes {
		out = append(out, event.New(event.SourcePoll, entity, event.ActionDelete, prev[id].record, at))
	}
	return out
}
