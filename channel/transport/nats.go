package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

// natsBufferSize is the per-session inbound message buffer
const natsBufferSize = 256

func init() {
	channel.RegisterTransport(string(cfg.TransportNATS), func(config cfg.ChannelConfiguration, clientID string) (channel.Transport, error) {
		if config.URL == "" {
			return nil, fmt.Errorf("nats transport requires url")
		}
		if config.NATSSubject == "" {
			return nil, fmt.Errorf("nats transport requires nats_subject")
		}
		return NewNATS(config.URL, config.NATSSubject, clientID), nil
	})
}

// NATS receives change events published under <subject>.> and sends control
// frames (pings) to <subject>.control with a private reply inbox.
type NATS struct {
	url      string
	subject  string
	clientID string
}

// NewNATS creates a NATS transport
func NewNATS(url, subject, clientID string) *NATS {
	return &NATS{url: url, subject: subject, clientID: clientID}
}

func (n *NATS) Name() string {
	return string(cfg.TransportNATS)
}

// Dial connects without client-side reconnects; the connection manager owns
// the reconnect policy
func (n *NATS) Dial(ctx context.Context) (channel.Conn, error) {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	c := &natsConn{
		control: n.subject + ".control",
		inbox:   nats.NewInbox(),
		msgs:    make(chan *nats.Msg, natsBufferSize),
		closed:  make(chan struct{}),
	}

	nc, err := nats.Connect(n.url,
		nats.Name(n.clientID),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { c.markClosed() }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.nc = nc

	if _, err := nc.ChanSubscribe(n.subject+".>", c.msgs); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.>: %w", n.subject, err)
	}
	if _, err := nc.ChanSubscribe(c.inbox, c.msgs); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to reply inbox: %w", err)
	}

	return c, nil
}

type natsConn struct {
	nc      *nats.Conn
	control string
	inbox   string
	msgs    chan *nats.Msg

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *natsConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *natsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		select {
		case msg := <-c.msgs:
			// our own control frames echo back through the wildcard subscription
			if msg.Subject == c.control {
				continue
			}
			return msg.Data, nil
		case <-c.closed:
			return nil, channel.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *natsConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return channel.ErrClosed
	default:
	}
	msg := &nats.Msg{Subject: c.control, Reply: c.inbox, Data: frame}
	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.control, err)
	}
	return nil
}

func (c *natsConn) Close() error {
	c.nc.Close()
	c.markClosed()
	return nil
}
