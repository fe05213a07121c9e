package event

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/encoding"
)

// MessageKind distinguishes the frames a push channel can deliver.
type MessageKind int

const (
	KindEvent MessageKind = iota
	KindPong
)

// Message is a decoded push channel frame.
type Message struct {
	Kind  MessageKind
	Event RealtimeEvent
}

type wireMessage struct {
	Type      string         `json:"type"`
	Entity    string         `json:"entity"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	ID        string         `json:"id"`
}

const typePong = "pong"

// Decode turns a raw frame into a Message. Frames may be JSON text or
// msgpack, optionally zstd compressed. A frame without an id gets one derived
// from its content, and a frame without a timestamp is stamped with receivedAt.
func Decode(frame []byte, receivedAt time.Time) (Message, error) {
	raw, err := encoding.Decompress(frame)
	if err != nil {
		return Message{}, &DecodeError{Reason: "decompress", Err: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Message{}, &DecodeError{Reason: "empty frame"}
	}

	var wm wireMessage
	if raw[0] == '{' {
		err = json.Unmarshal(raw, &wm)
	} else {
		err = encoding.Unmarshal(raw, &wm)
	}
	if err != nil {
		return Message{}, &DecodeError{Reason: "unmarshal", Err: err}
	}

	if wm.Type == typePong {
		return Message{Kind: KindPong}, nil
	}

	entity, err := ParseEntity(wm.Entity)
	if err != nil {
		return Message{}, &DecodeError{Reason: "entity", Err: err}
	}
	action, err := ParseAction(wm.Action)
	if err != nil {
		return Message{}, &DecodeError{Reason: "action", Err: err}
	}

	at := receivedAt.UTC()
	if wm.Timestamp != "" {
		at, err = time.Parse(time.RFC3339Nano, wm.Timestamp)
		if err != nil {
			return Message{}, &DecodeError{Reason: "timestamp", Err: err}
		}
		at = at.UTC()
	}

	ev := New(SourcePush, entity, action, Record(wm.Data), at)
	if wm.ID != "" {
		ev.ID = wm.ID
	}
	return Message{Kind: KindEvent, Event: ev}, nil
}

// Encode renders an event in the JSON wire format.
func Encode(ev RealtimeEvent) ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      string(ev.Type),
		Entity:    string(ev.Entity),
		Action:    string(ev.Action),
		Data:      ev.Data,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ID:        ev.ID,
	})
}

var pingFrame = []byte(`{"type":"ping"}`)

// EncodePing returns the heartbeat frame.
func EncodePing() []byte {
	out := make([]byte, len(pingFrame))
	copy(out, pingFrame)
	return out
}
