package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

const (
	// maxFrameSize bounds a single inbound frame
	maxFrameSize = 1 << 20

	// defaultWriteWait applies when Send is called without a deadline
	defaultWriteWait = 10 * time.Second

	// ClientIDHeader identifies the client on the upgrade request
	ClientIDHeader = "X-Client-ID"
)

func init() {
	channel.RegisterTransport(string(cfg.TransportWebSocket), func(config cfg.ChannelConfiguration, clientID string) (channel.Transport, error) {
		if config.URL == "" {
			return nil, fmt.Errorf("websocket transport requires url")
		}
		return NewWebSocket(config.URL, clientID, config.DialTimeout()), nil
	})
}

// WebSocket dials a websocket endpoint that streams JSON or binary frames
type WebSocket struct {
	url      string
	clientID string
	dialer   *websocket.Dialer
}

// NewWebSocket creates a websocket transport
func NewWebSocket(url, clientID string, handshakeTimeout time.Duration) *WebSocket {
	return &WebSocket{
		url:      url,
		clientID: clientID,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (w *WebSocket) Name() string {
	return string(cfg.TransportWebSocket)
}

// Dial performs the websocket handshake
func (w *WebSocket) Dial(ctx context.Context) (channel.Conn, error) {
	header := http.Header{}
	if w.clientID != "" {
		header.Set(ClientIDHeader, w.clientID)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (%s): %w", w.url, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", w.url, err)
	}
	conn.SetReadLimit(maxFrameSize)

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
			errors.Is(err, websocket.ErrCloseSent) {
			return nil, channel.ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return channel.ErrClosed
		}
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
