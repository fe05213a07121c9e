// Package channel abstracts the bidirectional push channel the backend uses
// to stream change events. Concrete transports live in channel/transport and
// register themselves by name.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
)

// ErrClosed is returned by Receive and Send once a connection is closed,
// locally or by the peer.
var ErrClosed = errors.New("channel closed")

// Conn is one open session on a push channel. Receive is called from a
// single goroutine; Send is called from a single (different) goroutine.
// Close unblocks a pending Receive.
type Conn interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Transport opens sessions. It must be reusable across reconnects.
type Transport interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Factory builds a Transport from channel configuration
type Factory func(config cfg.ChannelConfiguration, clientID string) (Transport, error)

var (
	factories = make(map[string]Factory)
	factoryMu sync.RWMutex
)

// RegisterTransport registers a transport factory under a name
func RegisterTransport(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// New builds the transport selected by config.Transport
func New(config cfg.ChannelConfiguration, clientID string) (Transport, error) {
	factoryMu.RLock()
	factory, exists := factories[string(config.Transport)]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown transport: %s", config.Transport)
	}
	return factory(config, clientID)
}

// Registered returns the names of all registered transports
func Registered() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
