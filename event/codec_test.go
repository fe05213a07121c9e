package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/encoding"
)

func TestDecodeJSONEvent(t *testing.T) {
	frame := []byte(`{"type":"push","entity":"projects","action":"update",` +
		`"data":{"id":"p1","title":"Clean water"},"timestamp":"2026-03-01T12:00:00.5Z","id":"evt-1"}`)

	msg, err := Decode(frame, time.Now())
	require.NoError(t, err)
	require.Equal(t, KindEvent, msg.Kind)

	ev := msg.Event
	assert.Equal(t, SourcePush, ev.Type)
	assert.Equal(t, Projects, ev.Entity)
	assert.Equal(t, ActionUpdate, ev.Action)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "Clean water", ev.Data["title"])
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC), ev.Timestamp)
}

func TestDecodeDerivesMissingID(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	frame := []byte(`{"type":"push","entity":"volunteers","action":"delete","data":{"id":"v9"}}`)

	msg, err := Decode(frame, received)
	require.NoError(t, err)
	assert.Equal(t, DeriveID(Volunteers, ActionDelete, "v9", received), msg.Event.ID)
	assert.Equal(t, received, msg.Event.Timestamp)
}

func TestDecodePong(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"pong"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, KindPong, msg.Kind)
}

func TestDecodeMsgpackCompressed(t *testing.T) {
	payload, err := encoding.Marshal(map[string]any{
		"type":   "push",
		"entity": "applications",
		"action": "insert",
		"data":   map[string]any{"id": "a1", "status": "pending"},
		"id":     "evt-a1",
	})
	require.NoError(t, err)

	compressed, err := encoding.Compress(payload)
	require.NoError(t, err)

	msg, err := Decode(compressed, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Applications, msg.Event.Entity)
	assert.Equal(t, "pending", msg.Event.Data["status"])
	assert.Equal(t, "evt-a1", msg.Event.ID)
}

func TestDecodeMalformed(t *testing.T) {
	frames := [][]byte{
		nil,
		[]byte(`   `),
		[]byte(`{"type":`),
		[]byte(`{"type":"push","entity":"spaceships","action":"insert","data":{}}`),
		[]byte(`{"type":"push","entity":"projects","action":"upsert","data":{}}`),
		[]byte(`{"type":"push","entity":"projects","action":"insert","timestamp":"yesterday"}`),
	}
	for _, f := range frames {
		_, err := Decode(f, time.Now())
		require.ErrorIs(t, err, ErrDecode, "frame %q", f)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := New(SourcePush, Organizations, ActionInsert, Record{"id": "o1"}, at)

	frame, err := Encode(ev)
	require.NoError(t, err)

	msg, err := Decode(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ev.ID, msg.Event.ID)
	assert.Equal(t, ev.Timestamp, msg.Event.Timestamp)
}

func TestEncodePing(t *testing.T) {
	p := EncodePing()
	assert.JSONEq(t, `{"type":"ping"}`, string(p))
	p[0] = 'x'
	assert.JSONEq(t, `{"type":"ping"}`, string(EncodePing()))
}
