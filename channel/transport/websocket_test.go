package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

// echoServer replies to pings with pongs and pushes one event after the upgrade
func echoServer(t *testing.T, gotClientID chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID <- r.Header.Get(ClientIDHeader)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"push","entity":"projects","action":"insert","data":{"id":"p1"}}`))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "ping") {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	ids := make(chan string, 1)
	srv := echoServer(t, ids)
	defer srv.Close()

	ws := NewWebSocket(wsURL(srv), "client-1", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := ws.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "client-1", <-ids)

	frame, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"entity":"projects"`)

	require.NoError(t, conn.Send(ctx, []byte(`{"type":"ping"}`)))
	frame, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(frame))
}

func TestWebSocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ws := NewWebSocket(wsURL(srv), "", time.Second)
	_, err := ws.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWebSocketCloseUnblocksReceive(t *testing.T) {
	ids := make(chan string, 1)
	srv := echoServer(t, ids)
	defer srv.Close()

	conn, err := NewWebSocket(wsURL(srv), "", time.Second).Dial(context.Background())
	require.NoError(t, err)

	// drain the greeting
	_, err = conn.Receive(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errCh <- err
	}()

	require.NoError(t, conn.Close())
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
	assert.NoError(t, conn.Close(), "second close is a no-op")
}

func TestRegisteredTransports(t *testing.T) {
	names := channel.Registered()
	assert.Contains(t, names, "websocket")
	assert.Contains(t, names, "nats")
	assert.Contains(t, names, "kafka")
}
