package dispatch

import (
	"fmt"
	"strings"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// Policy decides how an event touches the cache
type Policy string

const (
	// PolicyPatch merges updates into detail entries and refetches lists
	PolicyPatch Policy = "patch"
	// PolicyInvalidate marks the whole key stale on any action
	PolicyInvalidate Policy = "invalidate"
)

// ParsePolicy validates a policy name (case insensitive)
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyPatch, PolicyInvalidate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cache policy %q", s)
	}
}

func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ListSuffix is the last key segment of list-shaped entries
const ListSuffix = "list"

// Mapping binds an entity to one cache key
type Mapping struct {
	Entity   event.Entity
	CacheKey cache.Key
	Policy   Policy
}

// ListKey is the list-shaped sibling of the mapping's key
func (m Mapping) ListKey() cache.Key {
	return m.CacheKey.Append(ListSuffix)
}

// DetailKey addresses one record under the mapping's key
func (m Mapping) DetailKey(id string) cache.Key {
	return m.CacheKey.Append(id)
}

// Table holds the mappings of every entity. An entity with no entry is
// ignored by the dispatcher.
type Table map[event.Entity][]Mapping

// Add appends a mapping to the table
func (t Table) Add(m Mapping) {
	t[m.Entity] = append(t[m.Entity], m)
}

// Len returns the total number of mappings
func (t Table) Len() int {
	n := 0
	for _, ms := range t {
		n += len(ms)
	}
	return n
}

// DefaultTable maps each built-in entity to a key named after it. Records
// that are edited in place use the patch policy; notification feeds and
// applications are refetched.
func DefaultTable() Table {
	t := Table{}
	for _, e := range []event.Entity{event.Projects, event.Volunteers, event.Organizations} {
		t.Add(Mapping{Entity: e, CacheKey: cache.Key{string(e)}, Policy: PolicyPatch})
	}
	for _, e := range []event.Entity{event.Applications, event.Notifications} {
		t.Add(Mapping{Entity: e, CacheKey: cache.Key{string(e)}, Policy: PolicyInvalidate})
	}
	return t
}

// TableFromConfig builds the mapping table from [[entities]] sections. An
// empty list yields DefaultTable.
func TableFromConfig(entities []cfg.EntityConfiguration) (Table, error) {
	if len(entities) == 0 {
		return DefaultTable(), nil
	}
	t := Table{}
	for i, ec := range entities {
		entity, err := event.ParseEntity(ec.Name)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		policy, err := ParsePolicy(ec.Policy)
		if err != nil {
			return nil, fmt.Errorf("entities[%d] (%s): %w", i, ec.Name, err)
		}
		key := cache.Key(ec.CacheKey)
		if len(key) == 0 {
			key = cache.Key{ec.Name}
		}
		t.Add(Mapping{Entity: entity, CacheKey: key.Append(), Policy: policy})
	}
	return t, nil
}
