package cache

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

const DefaultSize = 1024

type entry struct {
	key       Key
	data      any
	hasData   bool
	stale     bool
	updatedAt time.Time
	observers int
	query     QueryFunc
	version   uint64 // bumped on every write or invalidation; older refetch results are discarded
	fetching  bool
}

// EntryInfo describes one cached entry
type EntryInfo struct {
	Key       string    `json:"key"`
	Data      any       `json:"data,omitempty"`
	Stale     bool      `json:"stale"`
	Observers int       `json:"observers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Memory is an in-process Store bounded by an LRU. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	onData  []func(Key, any)
}

// NewMemory creates a cache holding at most size entries
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{entries: entries, ctx: ctx, cancel: cancel}, nil
}

// OnData registers fn to run after a refetch stores new data. Register
// before use; fn runs on the refetch goroutine.
func (m *Memory) OnData(fn func(Key, any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = append(m.onData, fn)
}

func (m *Memory) Get(key Key) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries.Get(key.String())
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

func (m *Memory) Set(key Key, update Updater) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entryLocked(key)
	e.data = update(e.data, e.hasData)
	e.hasData = true
	e.stale = false
	e.updatedAt = time.Now()
	e.version++
	telemetry.CacheOperationsTotal.With("patch").Inc()
}

func (m *Memory) Remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	e, ok := m.entries.Peek(k)
	if !ok {
		return
	}
	telemetry.CacheOperationsTotal.With("remove").Inc()
	if e.observers > 0 {
		// keep the registration so the observer can refetch, drop the data
		e.data, e.hasData = nil, false
		e.stale = true
		e.version++
		return
	}
	m.entries.Remove(k)
}

func (m *Memory) Invalidate(prefix Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	telemetry.CacheOperationsTotal.With("invalidate").Inc()
	for _, k := range m.entries.Keys() {
		e, ok := m.entries.Peek(k)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		e.stale = true
		e.version++
		if e.observers > 0 && e.query != nil {
			m.refetchLocked(e)
		}
	}
}

// Observe marks key active and registers query as its loader. A missing or
// stale entry is fetched right away. The returned release is idempotent.
func (m *Memory) Observe(key Key, query QueryFunc) (release func()) {
	m.mu.Lock()
	e := m.entryLocked(key)
	e.observers++
	e.query = query
	if (!e.hasData || e.stale) && query != nil {
		m.refetchLocked(e)
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e.observers > 0 {
				e.observers--
			}
		})
	}
}

// Read returns the cached value, loading it with query when missing or stale
func (m *Memory) Read(ctx context.Context, key Key, query QueryFunc) (any, error) {
	m.mu.Lock()
	e, ok := m.entries.Get(key.String())
	if ok && e.hasData && !e.stale {
		data := e.data
		m.mu.Unlock()
		return data, nil
	}
	m.mu.Unlock()

	data, err := query(ctx)
	if err != nil {
		return nil, err
	}
	m.Set(key, func(any, bool) any { return data })
	return data, nil
}

// IsStale reports whether key is cached and marked stale
func (m *Memory) IsStale(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries.Peek(key.String())
	return ok && e.stale
}

// Len returns the number of entries
func (m *Memory) Len() int {
	return m.entries.Len()
}

// Entries describes the entries under prefix (all entries for an empty
// prefix), sorted by key
func (m *Memory) Entries(prefix Key, withData bool) []EntryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []EntryInfo
	for _, k := range m.entries.Keys() {
		e, ok := m.entries.Peek(k)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		info := EntryInfo{
			Key:       k,
			Stale:     e.stale,
			Observers: e.observers,
			UpdatedAt: e.updatedAt,
		}
		if withData {
			info.Data = e.data
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close cancels in-flight refetches and waits for them
func (m *Memory) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Memory) entryLocked(key Key) *entry {
	k := key.String()
	if e, ok := m.entries.Get(k); ok {
		return e
	}
	e := &entry{key: append(Key(nil), key...)}
	m.entries.Add(k, e)
	return e
}

func (m *Memory) refetchLocked(e *entry) {
	if e.fetching || m.ctx.Err() != nil {
		return
	}
	e.fetching = true
	query := e.query
	version := e.version
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		data, err := query(m.ctx)

		m.mu.Lock()
		e.fetching = false
		if err != nil {
			m.mu.Unlock()
			if m.ctx.Err() == nil {
				log.Warn().Err(err).Str("key", e.key.String()).Msg("Cache refetch failed, keeping stale data")
			}
			return
		}
		if e.version != version {
			// written or invalidated while fetching: a write wins as is, an
			// invalidation needs a fresh load
			if e.stale && e.observers > 0 {
				m.refetchLocked(e)
			}
			m.mu.Unlock()
			return
		}
		e.data, e.hasData = data, true
		e.stale = false
		e.updatedAt = time.Now()
		e.version++
		listeners := slices.Clone(m.onData)
		m.mu.Unlock()

		telemetry.CacheOperationsTotal.With("refetch").Inc()
		for _, fn := range listeners {
			fn(e.key, data)
		}
	}()
}
