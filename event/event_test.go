package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIDDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.UTC)

	a := DeriveID(Projects, ActionUpdate, "p1", at)
	b := DeriveID(Projects, ActionUpdate, "p1", at.Add(400*time.Microsecond))
	require.Equal(t, a, b, "same millisecond must yield same id")
	require.Equal(t, "projects-update-p1-1772366400123", a)

	require.NotEqual(t, a, DeriveID(Projects, ActionDelete, "p1", at))
	require.NotEqual(t, a, DeriveID(Projects, ActionUpdate, "p2", at))
	require.NotEqual(t, a, DeriveID(Projects, ActionUpdate, "p1", at.Add(time.Millisecond)))
}

func TestNewClonesData(t *testing.T) {
	data := Record{"id": "v1", "name": "Amina"}
	ev := New(SourcePoll, Volunteers, ActionInsert, data, time.Now())

	data["name"] = "changed"
	assert.Equal(t, "Amina", ev.Data["name"])
	assert.Equal(t, "volunteers:insert", ev.Topic())
	assert.Equal(t, "volunteers:*", WildcardTopic(ev.Entity))
	assert.Equal(t, SourcePoll, ev.Type)
}

func TestRecordID(t *testing.T) {
	cases := []struct {
		rec  Record
		want string
		ok   bool
	}{
		{Record{"id": "abc"}, "abc", true},
		{Record{"id": float64(42)}, "42", true},
		{Record{"id": int64(7)}, "7", true},
		{Record{"id": ""}, "", false},
		{Record{"name": "x"}, "", false},
		{Record{"id": nil}, "", false},
	}
	for _, tc := range cases {
		got, ok := tc.rec.ID()
		assert.Equal(t, tc.ok, ok, "%v", tc.rec)
		assert.Equal(t, tc.want, got, "%v", tc.rec)
	}
}

func TestRecordMerge(t *testing.T) {
	base := Record{"id": "1", "title": "old", "status": "open"}
	merged := base.Merge(Record{"title": "new"})

	assert.Equal(t, Record{"id": "1", "title": "new", "status": "open"}, merged)
	assert.Equal(t, "old", base["title"])
}

func TestParseEntity(t *testing.T) {
	e, err := ParseEntity("projects")
	require.NoError(t, err)
	require.Equal(t, Projects, e)

	_, err = ParseEntity("invoices")
	require.ErrorIs(t, err, ErrUnknownEntity)

	RegisterEntity("invoices")
	e, err = ParseEntity("invoices")
	require.NoError(t, err)
	require.Contains(t, KnownEntities(), e)
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		require.Equal(t, a, got)
	}
	_, err := ParseAction("upsert")
	require.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("boom")

	var err error = &TransportError{Op: "dial", Err: cause}
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFetch)

	err = &FetchError{Entity: Projects, Err: cause}
	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "projects")

	err = &DecodeError{Reason: "entity"}
	assert.ErrorIs(t, err, ErrDecode)

	err = &HandlerError{Topic: "projects:*", Recovered: "nil map"}
	assert.ErrorIs(t, err, ErrHandler)

	var te *TransportError
	require.ErrorAs(t, error(&TransportError{Op: "send", Err: cause}), &te)
	assert.Equal(t, "send", te.Op)
}
