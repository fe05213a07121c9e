package transport

import (
	"context"
	"sync"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

// Mock is an in-memory transport for tests. It is not registered by name.
type Mock struct {
	mu      sync.Mutex
	dialErr error
	dials   int
	conns   []*MockConn
	dialed  chan *MockConn
}

// NewMock creates a mock transport
func NewMock() *Mock {
	return &Mock{dialed: make(chan *MockConn, 64)}
}

func (m *Mock) Name() string {
	return "mock"
}

// Dial fails with the configured error or returns a fresh MockConn
func (m *Mock) Dial(ctx context.Context) (channel.Conn, error) {
	m.mu.Lock()
	m.dials++
	err := m.dialErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &MockConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.mu.Unlock()

	select {
	case m.dialed <- c:
	default:
	}
	return c, nil
}

// SetDialError makes subsequent dials fail with err (nil to succeed)
func (m *Mock) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// Dials returns the number of dial attempts
func (m *Mock) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Last returns the most recent successful connection
func (m *Mock) Last() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// Dialed delivers each successful connection
func (m *Mock) Dialed() <-chan *MockConn {
	return m.dialed
}

// MockConn is an in-memory session
type MockConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func (c *MockConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MockConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return channel.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), frame...))
	return nil
}

func (c *MockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Push queues an inbound frame as if the server had sent it
func (c *MockConn) Push(frame []byte) {
	c.inbound <- frame
}

// Drop simulates the server closing the connection
func (c *MockConn) Drop() {
	c.Close()
}

// Closed reports whether the connection was closed
func (c *MockConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SetSendError makes subsequent sends fail with err
func (c *MockConn) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of every frame sent so far
func (c *MockConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}
