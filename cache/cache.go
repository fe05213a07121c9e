// Package cache is the query cache the dispatcher writes into. Entries are
// addressed by hierarchical keys such as ["projects", "list"] or
// ["projects", "p-42"]; invalidating a key affects every key it prefixes.
package cache

import (
	"context"
	"strings"
)

// Key addresses a cached query
type Key []string

func (k Key) String() string {
	return strings.Join(k, ":")
}

// HasPrefix reports whether p is a prefix of k
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

// Append returns a new key with parts added
func (k Key) Append(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// ParseKey splits a "a:b:c" or "a,b,c" string into a Key
func ParseKey(s string) Key {
	if s == "" {
		return nil
	}
	sep := ":"
	if strings.Contains(s, ",") {
		sep = ","
	}
	return Key(strings.Split(s, sep))
}

// QueryFunc loads the value of a key
type QueryFunc func(ctx context.Context) (any, error)

// Updater receives the current value (nil, false when absent) and returns
// the value to store
type Updater func(old any, exists bool) any

// Store is the cache contract the dispatcher depends on
type Store interface {
	Get(key Key) (any, bool)
	Set(key Key, update Updater)
	Remove(key Key)
	// Invalidate marks every entry under prefix stale. Only entries that are
	// currently observed are refetched; the rest refetch on their next read.
	Invalidate(prefix Key)
}
