package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// recordingStore is a map-backed Store that logs every call
type recordingStore struct {
	data map[string]any
	ops  []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{data: map[string]any{}}
}

func (s *recordingStore) Get(key cache.Key) (any, bool) {
	v, ok := s.data[key.String()]
	return v, ok
}

func (s *recordingStore) Set(key cache.Key, update cache.Updater) {
	old, ok := s.data[key.String()]
	s.data[key.String()] = update(old, ok)
	s.ops = append(s.ops, "set "+key.String())
}

func (s *recordingStore) Remove(key cache.Key) {
	delete(s.data, key.String())
	s.ops = append(s.ops, "remove "+key.String())
}

func (s *recordingStore) Invalidate(prefix cache.Key) {
	s.ops = append(s.ops, "invalidate "+prefix.String())
}

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(entity event.Entity, action event.Action, data event.Record) event.RealtimeEvent {
	return event.New(event.SourcePush, entity, action, data, at)
}

func patchTable() Table {
	t := Table{}
	t.Add(Mapping{Entity: event.Projects, CacheKey: cache.Key{"projects"}, Policy: PolicyPatch})
	return t
}

func TestPatchInsertInvalidatesList(t *testing.T) {
	s := newRecordingStore()
	d := New(s, patchTable())

	n := d.Handle(ev(event.Projects, event.ActionInsert, event.Record{"id": "p9"}))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"invalidate projects:list"}, s.ops)
}

func TestPatchUpdateMergesExistingDetail(t *testing.T) {
	s := newRecordingStore()
	s.data["projects:p1"] = map[string]any{"id": "p1", "title": "Well", "status": "open"}
	d := New(s, patchTable())

	d.Handle(ev(event.Projects, event.ActionUpdate, event.Record{"id": "p1", "status": "closed"}))

	assert.Equal(t, []string{"set projects:p1", "invalidate projects:list"}, s.ops)
	got := s.data["projects:p1"].(event.Record)
	assert.Equal(t, "Well", got["title"])
	assert.Equal(t, "closed", got["status"])
}

func TestPatchUpdateWithoutDetailOnlyInvalidatesList(t *testing.T) {
	s := newRecordingStore()
	d := New(s, patchTable())

	d.Handle(ev(event.Projects, event.ActionUpdate, event.Record{"id": "p2", "status": "closed"}))

	assert.Equal(t, []string{"invalidate projects:list"}, s.ops)
	_, ok := s.data["projects:p2"]
	assert.False(t, ok, "update must not create a detail entry")
}

func TestPatchDeleteRemovesDetail(t *testing.T) {
	s := newRecordingStore()
	s.data["projects:p1"] = event.Record{"id": "p1"}
	d := New(s, patchTable())

	d.Handle(ev(event.Projects, event.ActionDelete, event.Record{"id": "p1"}))

	assert.Equal(t, []string{"remove projects:p1", "invalidate projects:list"}, s.ops)
	assert.Empty(t, s.data)
}

func TestInvalidatePolicyAnyAction(t *testing.T) {
	for _, action := range event.Actions {
		t.Run(string(action), func(t *testing.T) {
			s := newRecordingStore()
			tbl := Table{}
			tbl.Add(Mapping{Entity: event.Notifications, CacheKey: cache.Key{"notifications", "feed"}, Policy: PolicyInvalidate})
			d := New(s, tbl)

			d.Handle(ev(event.Notifications, action, event.Record{"id": "n1"}))
			assert.Equal(t, []string{"invalidate notifications:feed"}, s.ops)
		})
	}
}

func TestMultipleMappingsAndUnmappedEntity(t *testing.T) {
	s := newRecordingStore()
	tbl := patchTable()
	tbl.Add(Mapping{Entity: event.Projects, CacheKey: cache.Key{"dashboard", "stats"}, Policy: PolicyInvalidate})
	d := New(s, tbl)

	assert.Equal(t, 2, d.Handle(ev(event.Projects, event.ActionInsert, event.Record{"id": "p1"})))
	assert.Equal(t, []string{"invalidate projects:list", "invalidate dashboard:stats"}, s.ops)

	assert.Equal(t, 0, d.Handle(ev(event.Volunteers, event.ActionInsert, event.Record{"id": "v1"})))
	assert.Len(t, s.ops, 2)
}

func TestInvalidateEntityIgnoresPolicy(t *testing.T) {
	s := newRecordingStore()
	d := New(s, patchTable())

	assert.Equal(t, 1, d.InvalidateEntity(event.Projects))
	assert.Equal(t, []string{"invalidate projects"}, s.ops)
	assert.Equal(t, 0, d.InvalidateEntity(event.Organizations))
}

func TestSetTable(t *testing.T) {
	s := newRecordingStore()
	d := New(s, patchTable())

	tbl := Table{}
	tbl.Add(Mapping{Entity: event.Volunteers, CacheKey: cache.Key{"volunteers"}, Policy: PolicyInvalidate})
	d.SetTable(tbl)

	assert.Empty(t, d.Mappings(event.Projects))
	assert.Equal(t, []event.Entity{event.Volunteers}, d.Entities())
}

func TestUpdatePatchesMemoryCache(t *testing.T) {
	m, err := cache.NewMemory(8)
	require.NoError(t, err)
	defer m.Close()

	m.Set(cache.Key{"projects", "p1"}, func(any, bool) any {
		return event.Record{"id": "p1", "title": "Well"}
	})
	m.Set(cache.Key{"projects", "list"}, func(any, bool) any { return []string{"p1"} })

	d := New(m, patchTable())
	d.Handle(ev(event.Projects, event.ActionUpdate, event.Record{"id": "p1", "title": "Deep well"}))

	v, ok := m.Get(cache.Key{"projects", "p1"})
	require.True(t, ok)
	assert.Equal(t, "Deep well", v.(event.Record)["title"])
	assert.False(t, m.IsStale(cache.Key{"projects", "p1"}))
	assert.True(t, m.IsStale(cache.Key{"projects", "list"}))
}

func TestTableFromConfig(t *testing.T) {
	tbl, err := TableFromConfig([]cfg.EntityConfiguration{
		{Name: "projects", CacheKey: []string{"projects"}, Policy: "patch"},
		{Name: "projects", CacheKey: []string{"dashboard"}, Policy: "INVALIDATE"},
		{Name: "volunteers", Policy: "invalidate"},
	})
	require.NoError(t, err)
	require.Len(t, tbl[event.Projects], 2)
	assert.Equal(t, PolicyInvalidate, tbl[event.Projects][1].Policy)
	assert.Equal(t, cache.Key{"volunteers"}, tbl[event.Volunteers][0].CacheKey)

	_, err = TableFromConfig([]cfg.EntityConfiguration{{Name: "unknown", Policy: "patch"}})
	assert.ErrorIs(t, err, event.ErrUnknownEntity)

	_, err = TableFromConfig([]cfg.EntityConfiguration{{Name: "projects", Policy: "merge"}})
	assert.Error(t, err)

	def, err := TableFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 5, def.Len())
}

func TestPolicyUnmarshalText(t *testing.T) {
	var p Policy
	require.NoError(t, p.UnmarshalText([]byte(" Patch ")))
	assert.Equal(t, PolicyPatch, p)
	assert.Error(t, p.UnmarshalText([]byte("merge")))
}
