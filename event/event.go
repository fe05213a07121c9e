// Package event defines the change events that flow through the realtime layer:
// the entities they describe, the actions applied to them, the wire codec used
// by push channels and the error taxonomy shared by every component.
package event

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Source identifies the transport that produced an event.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Action is the kind of change applied to a record.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action in the order a poll cycle emits them.
var Actions = []Action{ActionInsert, ActionUpdate, ActionDelete}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionInsert, ActionUpdate, ActionDelete:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Entity names a backend collection. Only registered entities are accepted
// from the wire or from configuration.
type Entity string

const (
	Projects      Entity = "projects"
	Volunteers    Entity = "volunteers"
	Applications  Entity = "applications"
	Organizations Entity = "organizations"
	Notifications Entity = "notifications"
)

var (
	entitiesMu sync.RWMutex
	entities   = map[Entity]struct{}{
		Projects:      {},
		Volunteers:    {},
		Applications:  {},
		Organizations: {},
		Notifications: {},
	}
)

// RegisterEntity adds an entity name to the known set.
func RegisterEntity(name string) Entity {
	entitiesMu.Lock()
	defer entitiesMu.Unlock()
	e := Entity(name)
	entities[e] = struct{}{}
	return e
}

// ParseEntity returns the registered entity with the given name.
func ParseEntity(name string) (Entity, error) {
	entitiesMu.RLock()
	defer entitiesMu.RUnlock()
	e := Entity(name)
	if _, ok := entities[e]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return e, nil
}

// KnownEntities returns all registered entities sorted by name.
func KnownEntities() []Entity {
	entitiesMu.RLock()
	defer entitiesMu.RUnlock()
	out := make([]Entity, 0, len(entities))
	for e := range entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Record is one row of an entity as delivered by the backend.
type Record map[string]any

// ID returns the primary key of the record as a string.
func (r Record) ID() (string, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case []byte:
		return string(id), len(id) > 0
	default:
		return fmt.Sprint(id), true
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every field of patch written over it.
func (r Record) Merge(patch Record) Record {
	out := make(Record, len(r)+len(patch))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// RealtimeEvent is a single change to a single record. Events are values and
// must not be mutated after construction; Data is cloned by New.
type RealtimeEvent struct {
	Type      Source    `json:"type"`
	Entity    Entity    `json:"entity"`
	Action    Action    `json:"action"`
	Data      Record    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

// New builds an event and derives its id from (entity, action, record id, at).
func New(source Source, entity Entity, action Action, data Record, at time.Time) RealtimeEvent {
	recordID, _ := data.ID()
	return RealtimeEvent{
		Type:      source,
		Entity:    entity,
		Action:    action,
		Data:      data.Clone(),
		Timestamp: at.UTC(),
		ID:        DeriveID(entity, action, recordID, at),
	}
}

// Topic returns the exact topic this event is published on.
func (e RealtimeEvent) Topic() string {
	return Topic(e.Entity, e.Action)
}

// RecordID returns the primary key of the event payload.
func (e RealtimeEvent) RecordID() (string, bool) {
	return e.Data.ID()
}

// Topic builds the "entity:action" topic name.
func Topic(entity Entity, action Action) string {
	return string(entity) + ":" + string(action)
}

// WildcardTopic builds the "entity:*" topic that matches every action.
func WildcardTopic(entity Entity) string {
	return string(entity) + ":*"
}
