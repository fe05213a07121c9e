package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime layer
var (
	// ErrTransport marks failures opening, reading or writing the push channel
	ErrTransport = errors.New("transport error")

	// ErrDecode marks malformed push channel frames
	ErrDecode = errors.New("decode error")

	// ErrFetch marks failed snapshot fetches in the polling fallback
	ErrFetch = errors.New("fetch error")

	// ErrHandler marks a subscriber callback that panicked
	ErrHandler = errors.New("handler error")

	// ErrNotConnected is returned by sends attempted while the channel is down
	ErrNotConnected = errors.New("not connected")

	// ErrSendQueueFull is returned when the outbound queue cannot take more messages
	ErrSendQueueFull = errors.New("send queue full")

	// ErrUnknownEntity is returned for entity names that were never registered
	ErrUnknownEntity = errors.New("unknown entity")
)

// TransportError wraps a push channel failure
type TransportError struct {
	Op  string // dial, receive, send or heartbeat
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DecodeError describes a frame that could not be turned into an event
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// FetchError wraps a failed snapshot fetch for one entity
type FetchError struct {
	Entity Entity
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// HandlerError reports a subscriber that panicked while handling an event
type HandlerError struct {
	Topic     string
	Recovered any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s panicked: %v", e.Topic, e.Recovered)
}

func (e *HandlerError) Is(target error) bool {
	return target == ErrHandler
}
